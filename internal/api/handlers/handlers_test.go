package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/auth/session"
	"github.com/pysugar/command-center/internal/auth/token"
	"github.com/pysugar/command-center/internal/db"
	"github.com/pysugar/command-center/internal/documents"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/calendar"
	"github.com/pysugar/command-center/internal/google/contacts"
	"github.com/pysugar/command-center/internal/google/drive"
	"github.com/pysugar/command-center/internal/google/gmail"
	"github.com/pysugar/command-center/internal/google/googletest"
	"github.com/pysugar/command-center/internal/relationships"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// keyTokens hands out the account key as the access token so the fake
// server can tell accounts apart.
type keyTokens struct{}

func (keyTokens) Token(_ context.Context, key string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: key, TokenType: "Bearer"}, nil
}

// fakeGoogle serves canned Gmail, Calendar, Drive and People responses per
// account key. Keys listed in failing answer 403 everywhere, keys in
// limited answer 429 with an hour long Retry-After.
type fakeGoogle struct {
	mu      sync.Mutex
	failing map[string]bool
	limited map[string]bool
	hits    map[string]int
	sent    []string
	deleted []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.hits[key]++
	if f.limited[key] {
		w.Header().Set("Retry-After", "3600")
		googletest.Error(w, http.StatusTooManyRequests, "Quota exceeded.")
		return
	}
	if f.failing[key] {
		googletest.Error(w, http.StatusForbidden, "Request had insufficient authentication scopes.")
		return
	}
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/users/me/messages") && r.Method == http.MethodGet:
		googletest.JSON(w, http.StatusOK, map[string]any{
			"messages": []map[string]string{{"id": key + "-1"}, {"id": key + "-2"}},
		})
	case strings.HasSuffix(path, "/users/me/messages/send"):
		body, _ := io.ReadAll(r.Body)
		f.sent = append(f.sent, string(body))
		googletest.JSON(w, http.StatusOK, map[string]string{"id": "sent-1", "threadId": "thread-1"})
	case strings.Contains(path, "/users/me/messages/"):
		id := path[strings.LastIndex(path, "/")+1:]
		googletest.JSON(w, http.StatusOK, map[string]any{
			"id":           id,
			"threadId":     id,
			"labelIds":     []string{"INBOX"},
			"internalDate": messageDates[id],
			"payload": map[string]any{
				"headers": []map[string]string{{"name": "Subject", "value": "subject " + id}},
			},
		})
	case strings.HasSuffix(path, "/calendars/primary/events") && r.Method == http.MethodGet:
		googletest.JSON(w, http.StatusOK, map[string]any{"items": calendarItems[key]})
	case strings.Contains(path, "/calendars/primary/events/") && r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, key+":"+path[strings.LastIndex(path, "/")+1:])
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(path, "/files"):
		googletest.JSON(w, http.StatusOK, map[string]any{"files": driveFiles[key]})
	case strings.HasSuffix(path, "/people/me/connections"):
		googletest.JSON(w, http.StatusOK, map[string]any{"connections": connections[key]})
	default:
		googletest.Error(w, http.StatusNotFound, "unexpected path "+path)
	}
}

var messageDates = map[string]string{
	"aliceexamplecom-1": "1700000300000",
	"aliceexamplecom-2": "1700000100000",
	"bobexamplecom-1":   "1700000400000",
	"bobexamplecom-2":   "1700000200000",
}

var calendarItems = map[string][]map[string]any{
	"aliceexamplecom": {
		{"id": "a-late", "summary": "late", "start": map[string]string{"dateTime": "2030-01-02T15:00:00Z"}, "end": map[string]string{"dateTime": "2030-01-02T16:00:00Z"}},
	},
	"bobexamplecom": {
		{"id": "b-early", "summary": "early", "start": map[string]string{"dateTime": "2030-01-02T09:00:00Z"}, "end": map[string]string{"dateTime": "2030-01-02T10:00:00Z"}},
	},
}

var driveFiles = map[string][]map[string]any{
	"aliceexamplecom": {{"id": "a-old", "name": "old", "modifiedTime": "2024-01-01T00:00:00Z"}},
	"bobexamplecom":   {{"id": "b-new", "name": "new", "modifiedTime": "2024-06-01T00:00:00Z"}},
}

var connections = map[string][]map[string]any{
	"aliceexamplecom": {{"resourceName": "people/1", "names": []map[string]string{{"displayName": "zoe"}}}},
	"bobexamplecom":   {{"resourceName": "people/2", "names": []map[string]string{{"displayName": "Adam"}}}},
}

type testEnv struct {
	db     *gorm.DB
	deps   *Deps
	google *fakeGoogle
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	fake := &fakeGoogle{failing: map[string]bool{}, limited: map[string]bool{}, hits: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	factory := google.NewFactory(keyTokens{}, option.WithEndpoint(srv.URL+"/"))

	d := &Deps{
		Sessions:      session.NewManager(database, 30, 7, false),
		Registry:      accounts.NewRegistry(database),
		Tokens:        token.NewManager(database, &oauth2.Config{}),
		Gmail:         gmail.New(factory),
		Calendar:      calendar.New(factory),
		Contacts:      contacts.New(factory, 0),
		Drive:         drive.New(factory),
		Documents:     documents.NewStore(database),
		Relationships: relationships.NewStore(database, nil),
		Concurrency:   4,
		MaxResults:    20,
	}
	return &testEnv{db: database, deps: d, google: fake, router: NewRouter(d, "", nil)}
}

// login creates a session linked to emails and returns its cookie.
func (e *testEnv) login(t *testing.T, emails ...string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	sess, err := e.deps.Sessions.Create(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, email := range emails {
		tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}
		if _, err := e.deps.Registry.Connect(context.Background(), sess.ID, accounts.Profile{Email: email}, tok, ""); err != nil {
			t.Fatalf("connect %s: %v", email, err)
		}
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieSession {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v body=%s", err, rec.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rec.Code, rec.Body.String())
	}
}

// ids extracts the "id" field of each object in payload[key].
func ids(t *testing.T, payload map[string]any, key string) []string {
	t.Helper()
	list, ok := payload[key].([]any)
	if !ok {
		t.Fatalf("key %q is not a list: %#v", key, payload[key])
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		m := item.(map[string]any)
		id, _ := m["id"].(string)
		if id == "" {
			id, _ = m["resourceName"].(string)
		}
		out = append(out, id)
	}
	return out
}

func (f *fakeGoogle) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}
