package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/gmail"
	"github.com/pysugar/command-center/internal/logging"
	"github.com/pysugar/command-center/internal/util"
)

const defaultInboxQuery = "in:inbox"

// GmailInboxHandler aggregates the inbox of every session account,
// newest first. Serves /api/gmail and /api/gmail/messages.
func GmailInboxHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accts, ok := d.fanoutAccounts(w, r, demoEmails)
		if !ok {
			return
		}
		q := gmail.Query{
			Q:   r.URL.Query().Get("q"),
			Max: intParam(r, "max", d.MaxResults),
		}
		if q.Q == "" {
			q.Q = defaultInboxQuery
		}
		res := d.inbox(r.Context(), accts, q)
		writeJSON(w, http.StatusOK, map[string]any{
			"emails":   res.Items,
			"failures": res.Failures,
		})
	}
}

func (d *Deps) inbox(ctx context.Context, accts []google.Account, q gmail.Query) aggregate.Result[gmail.Email] {
	return aggregate.Run(ctx, accts, func(ctx context.Context, acct google.Account) ([]gmail.Email, error) {
		return d.Gmail.List(ctx, acct, q)
	}, aggregate.Options[gmail.Email]{
		Limit: d.Concurrency,
		Label: "gmail",
		Tag:   func(e *gmail.Email, acct google.Account) { e.Account = acct.Email },
		Less:  aggregate.ByTimeDesc(func(e gmail.Email) time.Time { return e.Date }),
	})
}

// GmailMessageHandler returns one full message of ?account=.
func GmailMessageHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := d.pickAccount(r, r.URL.Query().Get("account"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		msg, err := d.Gmail.Get(r.Context(), acct, chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

type actionRequest struct {
	Account string   `json:"account"`
	Action  string   `json:"action"`
	IDs     []string `json:"ids"`
}

// GmailActionHandler applies archive/read/star/trash style actions.
func GmailActionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		if !gmail.ValidAction(req.Action) {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown action %q", req.Action))
			return
		}
		if len(req.IDs) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "ids are required")
			return
		}
		acct, err := d.pickAccount(r, req.Account)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if err := d.Gmail.Modify(r.Context(), acct, req.Action, req.IDs); err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s📬 %s %d message(s) for %s", logging.Prefix(r.Context()), req.Action, len(req.IDs), util.MaskEmail(acct.Email))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"action":  req.Action,
			"count":   len(req.IDs),
			"account": acct.Email,
		})
	}
}

// addressList accepts either a single comma-separated string or an array.
type addressList []string

func (a *addressList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*a = splitAddresses(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	out := make([]string, 0, len(many))
	for _, m := range many {
		out = append(out, splitAddresses(m)...)
	}
	*a = out
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type sendRequest struct {
	Account   string      `json:"account"`
	To        addressList `json:"to"`
	Cc        addressList `json:"cc"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	HTML      bool        `json:"html"`
	ThreadID  string      `json:"threadId"`
	InReplyTo string      `json:"inReplyTo"`
}

// GmailSendHandler sends a new message or a threaded reply.
func GmailSendHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		acct, err := d.pickAccount(r, req.Account)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		sent, err := d.Gmail.Send(r.Context(), acct, gmail.Draft{
			From:      acct.Email,
			To:        req.To,
			Cc:        req.Cc,
			Subject:   req.Subject,
			Body:      req.Body,
			HTML:      req.HTML,
			ThreadID:  req.ThreadID,
			InReplyTo: req.InReplyTo,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s📤 Sent message %s from %s", logging.Prefix(r.Context()), sent.ID, util.MaskEmail(acct.Email))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": sent,
		})
	}
}
