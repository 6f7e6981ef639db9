package handlers

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/pysugar/command-center/internal/auth/session"
	"github.com/pysugar/command-center/internal/db/models"
	"github.com/pysugar/command-center/internal/util"
)

// AccountView is the public view of a connected account. Tokens never
// leave the server.
type AccountView struct {
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	LastError string     `json:"last_error,omitempty"`
}

func viewOf(a models.Account) AccountView {
	v := AccountView{Email: a.Email, Name: a.Name, Status: a.Status, LastError: a.LastError}
	if !a.ExpiresAt.IsZero() {
		exp := a.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func viewsOf(list []models.Account) []AccountView {
	views := make([]AccountView, 0, len(list))
	for _, a := range list {
		views = append(views, viewOf(a))
	}
	return views
}

// AuthStatusHandler reports whether the session has connected accounts.
func AuthStatusHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, err := d.sessionAccounts(r)
		if err != nil && !errors.Is(err, errNotConnected) {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"connected": len(list) > 0,
			"accounts":  viewsOf(list),
		})
	}
}

// AccountsHandler lists the session's connected accounts.
func AccountsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, err := d.sessionAccounts(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		views := viewsOf(list)
		writeJSON(w, http.StatusOK, map[string]any{
			"accounts": views,
			"count":    len(views),
		})
	}
}

// RemoveAccountHandler disconnects ?email= from the session. Removing the
// last account ends the session and clears every session cookie.
func RemoveAccountHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
			return
		}
		sid, _, err := d.sessionAccounts(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		acc, err := d.Registry.Get(r.Context(), sid, email)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		remaining, err := d.Registry.Remove(r.Context(), sid, acc.Email)
		if err != nil {
			writeErr(w, r, err)
			return
		}

		if len(remaining) == 0 {
			d.Sessions.Destroy(w, r, sid)
			log.Printf("👋 Last account %s removed, session closed", util.MaskEmail(acc.Email))
		} else {
			active := session.ActiveAccount(r)
			if active == acc.Email || !slices.Contains(remaining, active) {
				active = ""
			}
			d.Sessions.SetAccountHints(w, remaining, active)
		}

		if remaining == nil {
			remaining = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"removed":   acc.Email,
			"accounts":  remaining,
			"connected": len(remaining) > 0,
		})
	}
}

// RefreshHandler force-refreshes every account of the session.
func RefreshHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, list, err := d.sessionAccounts(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		keys := make([]string, 0, len(list))
		for _, a := range list {
			keys = append(keys, a.Key)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": d.Tokens.RefreshAll(r.Context(), keys),
		})
	}
}
