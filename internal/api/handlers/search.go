package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/contacts"
	"github.com/pysugar/command-center/internal/google/drive"
	"github.com/pysugar/command-center/internal/google/gmail"
)

// SearchHandler searches mail, Drive and contacts of every session
// account at once.
func SearchHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
			return
		}
		accts, ok := d.fanoutAccounts(w, r, nil)
		if !ok {
			return
		}
		max := intParam(r, "max", d.MaxResults)

		var (
			wg     sync.WaitGroup
			emails aggregate.Result[gmail.Email]
			files  aggregate.Result[drive.File]
			people aggregate.Result[contacts.Contact]
		)
		wg.Add(3)
		go func() {
			defer wg.Done()
			emails = d.inbox(r.Context(), accts, gmail.Query{Q: q, Max: max})
		}()
		go func() {
			defer wg.Done()
			files = d.files(r.Context(), accts, func(ctx context.Context, acct google.Account) ([]drive.File, error) {
				return d.Drive.Search(ctx, acct, q, max)
			})
		}()
		go func() {
			defer wg.Done()
			people = d.contacts(r.Context(), accts, q)
		}()
		wg.Wait()

		failures := make([]aggregate.Failure, 0)
		for _, group := range []struct {
			source string
			list   []aggregate.Failure
		}{{"gmail", emails.Failures}, {"drive", files.Failures}, {"contacts", people.Failures}} {
			for _, f := range group.list {
				f.Error = group.source + ": " + f.Error
				failures = append(failures, f)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"query":    q,
			"emails":   emails.Items,
			"files":    files.Items,
			"contacts": people.Items,
			"failures": failures,
		})
	}
}
