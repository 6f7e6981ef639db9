package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/calendar"
	"github.com/pysugar/command-center/internal/logging"
	"github.com/pysugar/command-center/internal/util"
)

const defaultCalendarDays = 7

// CalendarEventsHandler aggregates upcoming events of every session
// account, soonest first. The window is ?timeMin/?timeMax (RFC 3339) or
// ?days from now.
func CalendarEventsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := calendarWindow(r, time.Now())
		if err != nil {
			writeErr(w, r, err)
			return
		}
		opts.Max = intParam(r, "max", d.MaxResults)

		accts, ok := d.fanoutAccounts(w, r, demoEvents)
		if !ok {
			return
		}
		res := aggregate.Run(r.Context(), accts, func(ctx context.Context, acct google.Account) ([]calendar.Event, error) {
			return d.Calendar.List(ctx, acct, opts)
		}, aggregate.Options[calendar.Event]{
			Limit: d.Concurrency,
			Label: "calendar",
			Tag:   func(e *calendar.Event, acct google.Account) { e.Account = acct.Email },
			Less:  aggregate.ByTimeAsc(func(e calendar.Event) time.Time { return e.Start }),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"events":   res.Items,
			"failures": res.Failures,
		})
	}
}

func calendarWindow(r *http.Request, now time.Time) (calendar.ListOptions, error) {
	var opts calendar.ListOptions
	q := r.URL.Query()
	if v := q.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errBadRequestf("timeMin: %v", err)
		}
		opts.TimeMin = t
	} else {
		opts.TimeMin = now
	}
	if v := q.Get("timeMax"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errBadRequestf("timeMax: %v", err)
		}
		opts.TimeMax = t
	} else {
		days := intParam(r, "days", defaultCalendarDays)
		opts.TimeMax = opts.TimeMin.AddDate(0, 0, int(days))
	}
	if !opts.TimeMax.After(opts.TimeMin) {
		return opts, errBadRequestf("timeMax must be after timeMin")
	}
	return opts, nil
}

type eventRequest struct {
	Account string `json:"account"`
	calendar.EventInput
}

// CreateEventHandler creates an event on the chosen account's primary
// calendar.
func CreateEventHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		acct, err := d.pickAccount(r, req.Account)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		ev, err := d.Calendar.Create(r.Context(), acct, req.EventInput)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s📅 Created event %s for %s", logging.Prefix(r.Context()), ev.ID, util.MaskEmail(acct.Email))
		writeJSON(w, http.StatusCreated, ev)
	}
}

// PatchEventHandler updates the fields present in the body.
func PatchEventHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, r, err)
			return
		}
		email := r.URL.Query().Get("account")
		if email == "" {
			email = req.Account
		}
		acct, err := d.pickAccount(r, email)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		ev, err := d.Calendar.Patch(r.Context(), acct, chi.URLParam(r, "id"), req.EventInput)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// DeleteEventHandler deletes an event of ?account=.
func DeleteEventHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := d.pickAccount(r, r.URL.Query().Get("account"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		id := chi.URLParam(r, "id")
		if err := d.Calendar.Delete(r.Context(), acct, id); err != nil {
			writeErr(w, r, err)
			return
		}
		log.Printf("%s🗑️ Deleted event %s for %s", logging.Prefix(r.Context()), id, util.MaskEmail(acct.Email))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	}
}
