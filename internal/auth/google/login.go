package google

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/auth/session"
	"golang.org/x/oauth2"
)

// Flow wires the browser OAuth round trip to the session and registry.
type Flow struct {
	OAuth       *oauth2.Config
	Sessions    *session.Manager
	Registry    *accounts.Registry
	Secret      []byte
	ReturnURL   string // where the browser lands afterwards
	UserInfoURL string // override for tests
}

// HandleLogin ensures a session and redirects to Google's consent page.
func HandleLogin(f *Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := f.Sessions.Ensure(w, r)
		if err != nil {
			log.Printf("❌ Failed to start session: %v", err)
			http.Error(w, "failed to start session", http.StatusInternalServerError)
			return
		}
		state, err := NewState(f.Secret, s.ID)
		if err != nil {
			log.Printf("❌ Failed to sign oauth state: %v", err)
			http.Error(w, "failed to start login", http.StatusInternalServerError)
			return
		}

		opts := []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.ApprovalForce,
		}
		if hint := r.URL.Query().Get("login_hint"); hint != "" {
			opts = append(opts, oauth2.SetAuthURLParam("login_hint", hint))
		}
		http.Redirect(w, r, f.OAuth.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
	}
}

func (f *Flow) returnTo(params url.Values) string {
	base := strings.TrimRight(f.ReturnURL, "/") + "/"
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
