package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/command-center/internal/db"
	"github.com/pysugar/command-center/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type tokenEndpoint struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newTokenEndpoint(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{}
	te.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(te.srv.Close)
	return te
}

func (te *tokenEndpoint) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  te.srv.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func grant(accessToken, refreshToken string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if refreshToken == "" {
			fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, accessToken)
			return
		}
		fmt.Fprintf(w, `{"access_token":%q,"refresh_token":%q,"token_type":"Bearer","expires_in":3600}`, accessToken, refreshToken)
	}
}

func deny(status int, code string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":%q}`, code)
	}
}

func newTestTokenDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return database
}

func seedAccount(t *testing.T, database *gorm.DB, acc models.Account) {
	t.Helper()
	if acc.Status == "" {
		acc.Status = models.AccountActive
	}
	if err := database.Create(&acc).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		rec       Record
		wantToken string
		wantCalls int32
		wantErr   error
	}{
		{
			name:      "not expired",
			rec:       Record{AccessToken: "old", RefreshToken: "r", ExpiresAt: now.Add(time.Minute)},
			wantToken: "old",
		},
		{
			name:      "no expiry and no refresh token",
			rec:       Record{AccessToken: "old"},
			wantToken: "old",
		},
		{
			name:      "no expiry with refresh token",
			rec:       Record{AccessToken: "old", RefreshToken: "r"},
			wantToken: "old",
		},
		{
			name:      "expired exactly now",
			rec:       Record{AccessToken: "old", RefreshToken: "r", ExpiresAt: now},
			wantToken: "fresh",
			wantCalls: 1,
		},
		{
			name:      "expired",
			rec:       Record{AccessToken: "old", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)},
			wantToken: "fresh",
			wantCalls: 1,
		},
		{
			name:    "expired without refresh token",
			rec:     Record{AccessToken: "old", ExpiresAt: now.Add(-time.Hour)},
			wantErr: ErrNoRefreshToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTokenEndpoint(t, grant("fresh", ""))
			got, _, err := Resolve(context.Background(), te.config(), tt.rec, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.AccessToken != tt.wantToken {
				t.Fatalf("access token = %q, want %q", got.AccessToken, tt.wantToken)
			}
			if n := te.calls.Load(); n != tt.wantCalls {
				t.Fatalf("token endpoint calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestResolve_SendsClientCredentialsAndRefreshToken(t *testing.T) {
	var form map[string]string
	te := newTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"refresh_token": r.PostForm.Get("refresh_token"),
		}
		grant("fresh", "")(w, r)
	})

	rec := Record{AccessToken: "old", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(-time.Minute)}
	got, refreshed, err := Resolve(context.Background(), te.config(), rec, time.Now())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !refreshed {
		t.Fatal("expected refreshed = true")
	}
	want := map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client-id",
		"client_secret": "client-secret",
		"refresh_token": "refresh-1",
	}
	for k, v := range want {
		if form[k] != v {
			t.Fatalf("form[%s] = %q, want %q", k, form[k], v)
		}
	}
	if got.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token should be kept when none is returned, got %q", got.RefreshToken)
	}
	if !got.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", got.ExpiresAt)
	}
}

func TestAccessToken_RefreshesAndPersists(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{
		Key:          "aliceexamplecom",
		Email:        "alice@example.com",
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	te := newTokenEndpoint(t, grant("fresh", "refresh-2"))
	mgr := NewManager(database, te.config())

	got, err := mgr.AccessToken(context.Background(), "aliceexamplecom")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != "fresh" {
		t.Fatalf("AccessToken() = %q, want fresh", got)
	}

	var acc models.Account
	database.First(&acc, "key = ?", "aliceexamplecom")
	if acc.AccessToken != "fresh" || acc.RefreshToken != "refresh-2" {
		t.Fatalf("stored tokens not updated: %+v", acc)
	}

	// second call inside the new expiry must not hit the endpoint
	if _, err := mgr.AccessToken(context.Background(), "aliceexamplecom"); err != nil {
		t.Fatalf("AccessToken() second call error = %v", err)
	}
	if n := te.calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}
}

func TestAccessToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{
		Key:          "bobexamplecom",
		Email:        "bob@example.com",
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	te := newTokenEndpoint(t, grant("fresh", ""))
	mgr := NewManager(database, te.config())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := mgr.AccessToken(context.Background(), "bobexamplecom")
			if err == nil && tok != "fresh" {
				err = fmt.Errorf("got token %q", tok)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
	}
	if n := te.calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}
}

func TestAccessToken_LostConditionalWriteUsesWinner(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{
		Key:          "carolexamplecom",
		Email:        "carol@example.com",
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	te := newTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		// another process refreshes first
		database.Model(&models.Account{}).Where("key = ?", "carolexamplecom").Updates(map[string]any{
			"access_token": "winner",
			"expires_at":   time.Now().Add(time.Hour),
		})
		grant("loser", "")(w, r)
	})
	mgr := NewManager(database, te.config())

	got, err := mgr.AccessToken(context.Background(), "carolexamplecom")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != "winner" {
		t.Fatalf("AccessToken() = %q, want winner", got)
	}
	var acc models.Account
	database.First(&acc, "key = ?", "carolexamplecom")
	if acc.AccessToken != "winner" {
		t.Fatalf("stored token overwritten: %q", acc.AccessToken)
	}
}

func TestAccessToken_PermanentFailureMarksReauth(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{
		Key:          "daveexamplecom",
		Email:        "dave@example.com",
		AccessToken:  "old",
		RefreshToken: "revoked-token",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	te := newTokenEndpoint(t, deny(http.StatusBadRequest, "invalid_grant"))
	mgr := NewManager(database, te.config())

	_, err := mgr.AccessToken(context.Background(), "daveexamplecom")
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	var acc models.Account
	database.First(&acc, "key = ?", "daveexamplecom")
	if acc.Status != models.AccountReauthRequired {
		t.Fatalf("status = %q, want %q", acc.Status, models.AccountReauthRequired)
	}

	// reauth accounts are not retried against the endpoint
	if _, err := mgr.AccessToken(context.Background(), "daveexamplecom"); !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired on retry, got %v", err)
	}
	if n := te.calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}
}

func TestAccessToken_TransientFailureKeepsAccountActive(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{
		Key:          "erinexamplecom",
		Email:        "erin@example.com",
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	te := newTokenEndpoint(t, deny(http.StatusServiceUnavailable, "temporarily_unavailable"))
	mgr := NewManager(database, te.config())

	_, err := mgr.AccessToken(context.Background(), "erinexamplecom")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	var acc models.Account
	database.First(&acc, "key = ?", "erinexamplecom")
	if acc.Status != models.AccountActive {
		t.Fatalf("status = %q, want active", acc.Status)
	}
}

func TestAccessToken_UnknownAccount(t *testing.T) {
	mgr := NewManager(newTestTokenDB(t), &oauth2.Config{})
	if _, err := mgr.AccessToken(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccessToken_RefreshContract(t *testing.T) {
	database := newTestTokenDB(t)
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		key       string
		acc       models.Account
		wantToken string
		wantCalls int32
		wantErr   error
	}{
		{key: "valid", acc: models.Account{AccessToken: "old", RefreshToken: "r", ExpiresAt: now.Add(time.Minute)}, wantToken: "old"},
		{key: "noexpiry", acc: models.Account{AccessToken: "old"}, wantToken: "old"},
		{key: "expiresnow", acc: models.Account{AccessToken: "old", RefreshToken: "r", ExpiresAt: now}, wantToken: "fresh", wantCalls: 1},
		{key: "expired", acc: models.Account{AccessToken: "old", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)}, wantToken: "fresh", wantCalls: 1},
		{key: "stranded", acc: models.Account{AccessToken: "old", ExpiresAt: now.Add(-time.Hour)}, wantErr: ErrReauthRequired},
	}

	for _, tt := range tests {
		acc := tt.acc
		acc.Key = tt.key
		acc.Email = tt.key + "@example.com"
		seedAccount(t, database, acc)

		te := newTokenEndpoint(t, grant("fresh", ""))
		mgr := NewManager(database, te.config())
		mgr.now = func() time.Time { return now }

		got, err := mgr.AccessToken(context.Background(), tt.key)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tt.key, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: AccessToken() error = %v", tt.key, err)
		}
		if got != tt.wantToken {
			t.Fatalf("%s: access token = %q, want %q", tt.key, got, tt.wantToken)
		}
		if n := te.calls.Load(); n != tt.wantCalls {
			t.Fatalf("%s: token endpoint calls = %d, want %d", tt.key, n, tt.wantCalls)
		}
	}
}

func TestRefreshAll_ReportsEachAccount(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{Key: "okexamplecom", Email: "ok@example.com", AccessToken: "a", RefreshToken: "good"})
	seedAccount(t, database, models.Account{Key: "badexamplecom", Email: "bad@example.com", AccessToken: "b", ExpiresAt: time.Now().Add(-time.Minute)})
	seedAccount(t, database, models.Account{Key: "keptexamplecom", Email: "kept@example.com", AccessToken: "c", ExpiresAt: time.Now().Add(time.Hour)})
	te := newTokenEndpoint(t, grant("fresh", ""))
	mgr := NewManager(database, te.config())

	results := mgr.RefreshAll(context.Background(), []string{"okexamplecom", "badexamplecom", "keptexamplecom"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Error != "" || results[0].Email != "ok@example.com" {
		t.Fatalf("unexpected result for ok account: %+v", results[0])
	}
	if results[1].Error == "" {
		t.Fatalf("expected error for expired account without refresh token: %+v", results[1])
	}
	if results[2].Error != "" {
		t.Fatalf("valid token without refresh token must not fail: %+v", results[2])
	}
	if n := te.calls.Load(); n != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", n)
	}

	var kept models.Account
	database.First(&kept, "key = ?", "keptexamplecom")
	if kept.Status != models.AccountActive || kept.AccessToken != "c" {
		t.Fatalf("account with a valid token was changed: %+v", kept)
	}
	if tok, err := mgr.AccessToken(context.Background(), "keptexamplecom"); err != nil || tok != "c" {
		t.Fatalf("AccessToken() = %q, %v; want c", tok, err)
	}
}

func TestRefresh_ValidTokenWithoutRefreshTokenIsNotMarked(t *testing.T) {
	database := newTestTokenDB(t)
	seedAccount(t, database, models.Account{Key: "franexamplecom", Email: "fran@example.com", AccessToken: "c", ExpiresAt: time.Now().Add(time.Hour)})
	mgr := NewManager(database, &oauth2.Config{})

	if _, err := mgr.Refresh(context.Background(), "franexamplecom"); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	var acc models.Account
	database.First(&acc, "key = ?", "franexamplecom")
	if acc.Status != models.AccountActive {
		t.Fatalf("status = %q, want active", acc.Status)
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: "oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}", permanent: true},
		{name: "revoked", errText: "token has been expired or revoked", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "temporary", errText: "temporarily_unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(assertErr(tt.errText))
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
