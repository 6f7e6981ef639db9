package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v body=%s", err, rec.Body.String())
	}
	return list
}

func listIDs(list []map[string]any) []string {
	out := make([]string, 0, len(list))
	for _, it := range list {
		out = append(out, it["id"].(string))
	}
	return out
}

func (e *testEnv) create(t *testing.T, path, body string) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, body)
	expectStatus(t, rec, http.StatusCreated)
	return decode(t, rec)
}

func TestDocuments_CRUDAndReorder(t *testing.T) {
	env := newTestEnv(t)

	a := env.create(t, "/api/tasks", `{"title":"a"}`)["id"].(string)
	b := env.create(t, "/api/tasks", `{"title":"b"}`)["id"].(string)
	c := env.create(t, "/api/tasks", `{"title":"c","priority":2}`)["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/tasks", "")
	expectStatus(t, rec, http.StatusOK)
	if got := listIDs(decodeList(t, rec)); !slices.Equal(got, []string{a, b, c}) {
		t.Fatalf("expected creation order, got %v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/tasks/reorder", fmt.Sprintf(`{"ids":[%q,%q]}`, c, a))
	expectStatus(t, rec, http.StatusOK)
	if got := listIDs(decodeList(t, rec)); !slices.Equal(got, []string{c, a, b}) {
		t.Fatalf("expected [c a b], got %v", got)
	}

	rec = env.do(t, http.MethodPatch, "/api/tasks/"+b, `{"done":true}`)
	expectStatus(t, rec, http.StatusOK)
	if item := decode(t, rec); item["done"] != true || item["title"] != "b" {
		t.Fatalf("unexpected patched item %#v", item)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/tasks/"+a, ""), http.StatusOK)
	rec = env.do(t, http.MethodGet, "/api/tasks", "")
	list := decodeList(t, rec)
	if got := listIDs(list); !slices.Equal(got, []string{c, b}) {
		t.Fatalf("expected [c b] after delete, got %v", got)
	}
	if list[1]["position"] != float64(1) {
		t.Fatalf("expected compacted positions, got %#v", list[1]["position"])
	}
}

func TestDocuments_Errors(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, http.MethodPost, "/api/tasks", `{"notes":"untitled"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/investors", `{"title":"wrong field"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/tasks/missing", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/tasks/reorder", `{"ids":[]}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/tasks/reorder", `{"ids":["missing"]}`), http.StatusNotFound)
}

func TestDocuments_MissionAlias(t *testing.T) {
	env := newTestEnv(t)

	id := env.create(t, "/api/mission", `{"title":"north star"}`)["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/missions", "")
	expectStatus(t, rec, http.StatusOK)
	if got := listIDs(decodeList(t, rec)); !slices.Equal(got, []string{id}) {
		t.Fatalf("expected mission in missions, got %v", got)
	}
	investors := decodeList(t, env.do(t, http.MethodGet, "/api/investors", ""))
	if len(investors) != 0 {
		t.Fatalf("collections must be separate, got %v", investors)
	}
}

func TestRelationships_ProjectsAndContacts(t *testing.T) {
	env := newTestEnv(t)

	project := env.create(t, "/api/relationships/projects", `{"name":"Apollo","description":"moonshot"}`)
	id := project["id"].(string)
	if project["status"] != "active" || project["source"] != "manual" {
		t.Fatalf("unexpected project %#v", project)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/relationships/projects", `{"name":"Apollo"}`), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/relationships/projects", `{"name":"  "}`), http.StatusBadRequest)

	contact := env.create(t, "/api/relationships/projects/"+id+"/contacts", `{"name":"Ann","email":"ANN@Example.com"}`)
	if contact["email"] != "ann@example.com" || contact["project_id"] != id {
		t.Fatalf("unexpected contact %#v", contact)
	}

	rec := env.do(t, http.MethodGet, "/api/relationships/projects", "")
	expectStatus(t, rec, http.StatusOK)
	projects := decode(t, rec)["projects"].([]any)
	if len(projects) != 1 || projects[0].(map[string]any)["contact_count"] != float64(1) {
		t.Fatalf("unexpected projects %#v", projects)
	}

	rec = env.do(t, http.MethodGet, "/api/relationships/projects/"+id+"/contacts", "")
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["count"] != float64(1) {
		t.Fatalf("expected one contact, body=%s", rec.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/relationships/projects/"+id+"/contacts/nope", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/relationships/projects/"+id, ""), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/relationships/projects/"+id+"/contacts", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/relationships/projects/"+id, ""), http.StatusNotFound)
}

func TestRouter_AdminAuth(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.deps, "letmein", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.SetBasicAuth("admin", "letmein")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["version"] == "" {
		t.Fatalf("expected version, body=%s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}
