package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/pysugar/command-center/internal/accounts"
	"github.com/pysugar/command-center/internal/auth/session"
	"github.com/pysugar/command-center/internal/auth/token"
	"github.com/pysugar/command-center/internal/db/models"
	"github.com/pysugar/command-center/internal/documents"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/calendar"
	"github.com/pysugar/command-center/internal/google/contacts"
	"github.com/pysugar/command-center/internal/google/drive"
	"github.com/pysugar/command-center/internal/google/gmail"
	"github.com/pysugar/command-center/internal/logging"
	"github.com/pysugar/command-center/internal/relationships"
	"github.com/pysugar/command-center/internal/util"
)

// Deps carries everything the route handlers need.
type Deps struct {
	Sessions      *session.Manager
	Registry      *accounts.Registry
	Tokens        *token.Manager
	Gmail         *gmail.Client
	Calendar      *calendar.Client
	Contacts      *contacts.Client
	Drive         *drive.Client
	Documents     *documents.Store
	Relationships *relationships.Store

	// Concurrency bounds per-request account fan-out; 0 is unbounded.
	Concurrency int
	// MaxResults is the default page size for list routes.
	MaxResults int64
	// DemoFallback serves sample data instead of 401 on read routes.
	DemoFallback bool
}

var (
	errNotConnected = errors.New("no Google account connected")
	errBadRequest   = errors.New("invalid request")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}

// writeNotConnected answers 401 with the connected flag the UI keys on.
func writeNotConnected(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"connected": false,
		"error":     msg,
		"code":      "not_connected",
	})
}

// writeErr maps err onto a status and error code and writes it.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	switch status {
	case http.StatusUnauthorized:
		if code == "not_connected" {
			writeNotConnected(w, err.Error())
			return
		}
	case http.StatusInternalServerError, http.StatusBadGateway:
		log.Printf("%s❌ %s %s: %s", logging.Prefix(r.Context()), r.Method, r.URL.Path, util.TruncateLog(err.Error(), 300))
	}
	writeError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errNotConnected), errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized, "not_connected"
	case errors.Is(err, token.ErrReauthRequired), errors.Is(err, token.ErrNoRefreshToken):
		return http.StatusUnauthorized, "reauth_required"
	case errors.Is(err, token.ErrRefreshFailed):
		return http.StatusBadGateway, "refresh_failed"
	case errors.Is(err, accounts.ErrNotFound), errors.Is(err, token.ErrNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, documents.ErrUnknownCollection):
		return http.StatusNotFound, "unknown_collection"
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, relationships.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBadRequest),
		errors.Is(err, accounts.ErrInvalidEmail),
		errors.Is(err, documents.ErrInvalid),
		errors.Is(err, relationships.ErrInvalid),
		errors.Is(err, gmail.ErrUnknownAction),
		errors.Is(err, gmail.ErrNoRecipients),
		errors.Is(err, calendar.ErrInvalidEvent):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, accounts.ErrKeyCollision), errors.Is(err, relationships.ErrDuplicate):
		return http.StatusConflict, "conflict"
	case google.IsAPIError(err), errors.Is(err, google.ErrRateLimited):
		return google.Status(err), "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errBadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// sessionAccounts returns the accounts linked to the caller's session.
func (d *Deps) sessionAccounts(r *http.Request) (string, []models.Account, error) {
	sess, err := d.Sessions.Current(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return "", nil, errNotConnected
		}
		return "", nil, err
	}
	list, err := d.Registry.List(r.Context(), sess.ID)
	if err != nil {
		return sess.ID, nil, err
	}
	if len(list) == 0 {
		return sess.ID, nil, errNotConnected
	}
	return sess.ID, list, nil
}

// fanoutAccounts resolves the accounts a read route aggregates over,
// narrowed by an optional ?account= filter. It writes the response itself
// (sample data or an error) and returns false when the handler should stop.
func (d *Deps) fanoutAccounts(w http.ResponseWriter, r *http.Request, demo func() any) ([]google.Account, bool) {
	_, list, err := d.sessionAccounts(r)
	if err != nil {
		if errors.Is(err, errNotConnected) && d.DemoFallback && demo != nil {
			writeJSON(w, http.StatusOK, demo())
			return nil, false
		}
		writeErr(w, r, err)
		return nil, false
	}

	if filter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("account"))); filter != "" {
		for _, a := range list {
			if a.Email == filter {
				return []google.Account{toAccount(a)}, true
			}
		}
		writeErr(w, r, accounts.ErrNotFound)
		return nil, false
	}

	out := make([]google.Account, 0, len(list))
	for _, a := range list {
		out = append(out, toAccount(a))
	}
	return out, true
}

// pickAccount chooses the account a single-account action runs as: the
// explicit email, else the UI's active account, else the first linked.
func (d *Deps) pickAccount(r *http.Request, email string) (google.Account, error) {
	sid, list, err := d.sessionAccounts(r)
	if err != nil {
		return google.Account{}, err
	}
	if email = strings.TrimSpace(email); email != "" {
		acc, err := d.Registry.Get(r.Context(), sid, email)
		if err != nil {
			return google.Account{}, err
		}
		return toAccount(*acc), nil
	}
	if active := session.ActiveAccount(r); active != "" {
		for _, a := range list {
			if a.Email == active {
				return toAccount(a), nil
			}
		}
	}
	return toAccount(list[0]), nil
}

func toAccount(a models.Account) google.Account {
	return google.Account{Key: a.Key, Email: a.Email}
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
