package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if len(id) != 8 {
		t.Errorf("GenerateRequestID() length = %d, want 8", len(id))
	}
	if id2 := GenerateRequestID(); id == id2 {
		t.Errorf("GenerateRequestID() generated duplicate IDs: %s", id)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID(empty context) = %q, want empty string", got)
	}
	if got := Prefix(ctx); got != "" {
		t.Errorf("Prefix(empty context) = %q, want empty string", got)
	}

	ctx = WithRequestID(ctx, "test1234")
	if got := GetRequestID(ctx); got != "test1234" {
		t.Errorf("GetRequestID() = %q, want %q", got, "test1234")
	}
	if got := Prefix(ctx); got != "[test1234] " {
		t.Errorf("Prefix() = %q", got)
	}
}

func TestRequestIDMiddleware_ReusesHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/gmail", nil)
	req.Header.Set(HeaderRequestID, "client-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "client-id" {
		t.Errorf("handler saw %q, want client-id", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != "client-id" {
		t.Errorf("response header = %q, want client-id", got)
	}
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Errorf("generated id %q, want 8 chars", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header does not match context id")
	}
}
