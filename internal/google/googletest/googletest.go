// Package googletest points the Google API clients at an in-process fake.
package googletest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pysugar/command-center/internal/google"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

type staticToken struct{}

func (staticToken) Token(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}, nil
}

// NewFactory starts a server running handler and returns a factory whose
// services all talk to it.
func NewFactory(t testing.TB, handler http.Handler) *google.Factory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return google.NewFactory(staticToken{},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
}

// JSON writes v as a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes a Google-style error body.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}
