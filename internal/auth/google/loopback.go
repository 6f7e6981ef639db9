package google

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/db/models"
	"golang.org/x/oauth2"
)

// CallbackTimeout is how long the loopback server waits for the browser.
const CallbackTimeout = 5 * time.Minute

// loopbackSession binds CLI logins in the state token.
const loopbackSession = "cli"

// LoopbackResult is the outcome of a CLI login.
type LoopbackResult struct {
	Account *models.Account
	Err     error
}

// Loopback connects an account from the command line by running a
// temporary callback server on 127.0.0.1. The account is stored without a
// browser session link.
type Loopback struct {
	OAuth       *oauth2.Config // RedirectURL is overwritten
	Registry    *accounts.Registry
	Secret      []byte
	Port        int // 0 picks a free port
	UserInfoURL string
}

// Start listens for the callback and returns the consent URL to open, a
// channel receiving exactly one result, and a cleanup function.
func (l *Loopback) Start(ctx context.Context) (authURL string, result <-chan LoopbackResult, cleanup func(), err error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.Port))
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	log.Printf("[OAuth] Callback server listening on port %d", port)

	cfg := *l.OAuth
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/oauth-callback", port)

	state, err := NewState(l.Secret, loopbackSession)
	if err != nil {
		listener.Close()
		return "", nil, nil, err
	}

	results := make(chan LoopbackResult, 1)
	var received atomic.Bool
	var once sync.Once
	deliver := func(r LoopbackResult) {
		once.Do(func() { results <- r })
	}

	mux := http.NewServeMux()
	srv := &http.Server{Handler: mux}
	mux.HandleFunc("/oauth-callback", func(w http.ResponseWriter, r *http.Request) {
		// requests without our state must not use up the single callback
		if err := l.checkState(r, state); err != nil {
			log.Printf("[OAuth] Ignoring callback with bad state: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !received.CompareAndSwap(false, true) {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		acc, err := l.complete(ctx, &cfg, r, state)
		if err != nil {
			deliver(LoopbackResult{Err: err})
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "✅ Connected %s. You can close this window.\n", acc.Email)
		deliver(LoopbackResult{Account: acc})
	})

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[OAuth] Callback server error: %v", err)
		}
	}()

	done := make(chan struct{})
	var stop sync.Once
	cleanup = func() {
		stop.Do(func() {
			close(done)
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Printf("[OAuth] Error shutting down callback server: %v", err)
			}
			log.Printf("[OAuth] Callback server stopped")
		})
	}

	go func() {
		timer := time.NewTimer(CallbackTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			deliver(LoopbackResult{Err: fmt.Errorf("OAuth callback timeout after %v", CallbackTimeout)})
		case <-ctx.Done():
			deliver(LoopbackResult{Err: ctx.Err()})
		case <-done:
			return
		}
		cleanup()
	}()

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), results, cleanup, nil
}

func (l *Loopback) checkState(r *http.Request, state string) error {
	if r.URL.Query().Get("state") != state {
		return ErrInvalidState
	}
	return VerifyState(l.Secret, state, loopbackSession)
}

func (l *Loopback) complete(ctx context.Context, cfg *oauth2.Config, r *http.Request, state string) (*models.Account, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("consent denied: %s", e)
	}
	tok, err := cfg.Exchange(ctx, q.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	profile, err := FetchProfile(ctx, cfg, tok, l.UserInfoURL)
	if err != nil {
		return nil, err
	}
	return l.Registry.Connect(ctx, "", profile, tok, strings.Join(cfg.Scopes, " "))
}
