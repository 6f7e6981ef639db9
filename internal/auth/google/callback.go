package google

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/util"
)

// HandleCallback finishes the OAuth flow: it checks the state against the
// session, exchanges the code, identifies the account and connects it.
// Failures redirect back to the UI with an auth_error parameter.
func HandleCallback(f *Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fail := func(code string, err error) {
			log.Printf("❌ OAuth callback failed (%s): %v", code, err)
			http.Redirect(w, r, f.returnTo(url.Values{"auth_error": {code}}), http.StatusFound)
		}

		if e := q.Get("error"); e != "" {
			fail(e, errors.New(q.Get("error_description")))
			return
		}

		s, err := f.Sessions.Current(r)
		if err != nil {
			fail("no_session", err)
			return
		}
		if err := VerifyState(f.Secret, q.Get("state"), s.ID); err != nil {
			fail("invalid_state", err)
			return
		}
		code := q.Get("code")
		if code == "" {
			fail("missing_code", errors.New("no code parameter"))
			return
		}

		tok, err := f.OAuth.Exchange(r.Context(), code)
		if err != nil {
			fail("exchange_failed", err)
			return
		}
		profile, err := FetchProfile(r.Context(), f.OAuth, tok, f.UserInfoURL)
		if err != nil {
			fail("userinfo_failed", err)
			return
		}

		removed, err := f.Registry.IsBlacklisted(r.Context(), profile.Email)
		if err != nil {
			log.Printf("⚠️ Blacklist lookup failed for %s: %v", util.MaskEmail(profile.Email), err)
		} else if removed {
			log.Printf("♻️ Reconnecting previously removed account %s", util.MaskEmail(profile.Email))
		}
		acc, err := f.Registry.Connect(r.Context(), s.ID, profile, tok, strings.Join(f.OAuth.Scopes, " "))
		if err != nil {
			if errors.Is(err, accounts.ErrKeyCollision) {
				fail("key_collision", err)
				return
			}
			fail("store_failed", err)
			return
		}

		emails, err := f.Registry.Emails(r.Context(), s.ID)
		if err != nil {
			fail("store_failed", err)
			return
		}
		f.Sessions.SetAccountHints(w, emails, acc.Email)
		log.Printf("🔐 Session now has %d account(s)", len(emails))
		params := url.Values{"connected": {acc.Email}}
		if removed {
			params.Set("reconnected", "true")
		}
		http.Redirect(w, r, f.returnTo(params), http.StatusFound)
	}
}
