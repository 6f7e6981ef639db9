package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google"
	"github.com/pysugar/command-center/internal/google/contacts"
)

// ContactsHandler aggregates contacts of every session account, ordered
// by name and narrowed by ?q=.
func ContactsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accts, ok := d.fanoutAccounts(w, r, demoContacts)
		if !ok {
			return
		}
		res := d.contacts(r.Context(), accts, r.URL.Query().Get("q"))
		writeJSON(w, http.StatusOK, map[string]any{
			"contacts": res.Items,
			"failures": res.Failures,
		})
	}
}

func (d *Deps) contacts(ctx context.Context, accts []google.Account, q string) aggregate.Result[contacts.Contact] {
	return aggregate.Run(ctx, accts, func(ctx context.Context, acct google.Account) ([]contacts.Contact, error) {
		return d.Contacts.Search(ctx, acct, q)
	}, aggregate.Options[contacts.Contact]{
		Limit: d.Concurrency,
		Label: "contacts",
		Tag:   func(c *contacts.Contact, acct google.Account) { c.Account = acct.Email },
		Less: func(a, b contacts.Contact) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		},
	})
}
