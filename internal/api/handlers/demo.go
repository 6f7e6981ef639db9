package handlers

import (
	"time"

	"github.com/pysugar/command-center/internal/aggregate"
	"github.com/pysugar/command-center/internal/google/calendar"
	"github.com/pysugar/command-center/internal/google/contacts"
	"github.com/pysugar/command-center/internal/google/drive"
	"github.com/pysugar/command-center/internal/google/gmail"
)

// Sample payloads served when no account is connected and demo fallback
// is enabled.

const demoAccount = "demo@example.com"

func demoResponse(key string, items any) map[string]any {
	return map[string]any{
		key:        items,
		"failures": []aggregate.Failure{},
		"mock":     true,
	}
}

func demoEmails() any {
	now := time.Now()
	return demoResponse("emails", []gmail.Email{
		{
			ID:       "demo-1",
			ThreadID: "demo-1",
			From:     "Ada Lovelace <ada@example.com>",
			To:       demoAccount,
			Subject:  "Quarterly review notes",
			Snippet:  "Attached are the notes from today's review.",
			Date:     now.Add(-time.Hour),
			Unread:   true,
			Labels:   []string{"INBOX", "UNREAD"},
			Account:  demoAccount,
		},
		{
			ID:       "demo-2",
			ThreadID: "demo-2",
			From:     "Grace Hopper <grace@example.com>",
			To:       demoAccount,
			Subject:  "Intro: compiler team",
			Snippet:  "Happy to connect you both.",
			Date:     now.Add(-26 * time.Hour),
			Labels:   []string{"INBOX"},
			Account:  demoAccount,
		},
	})
}

func demoEvents() any {
	start := time.Now().Truncate(time.Hour).Add(2 * time.Hour)
	return demoResponse("events", []calendar.Event{
		{
			ID:      "demo-event-1",
			Summary: "Investor sync",
			Start:   start,
			End:     start.Add(30 * time.Minute),
			Status:  "confirmed",
			Account: demoAccount,
		},
		{
			ID:      "demo-event-2",
			Summary: "Team planning",
			Start:   start.Add(24 * time.Hour),
			End:     start.Add(25 * time.Hour),
			Status:  "confirmed",
			Account: demoAccount,
		},
	})
}

func demoContacts() any {
	return demoResponse("contacts", []contacts.Contact{
		{ResourceName: "people/demo1", Name: "Ada Lovelace", Emails: []string{"ada@example.com"}, Organization: "Analytical Engines", Account: demoAccount},
		{ResourceName: "people/demo2", Name: "Grace Hopper", Emails: []string{"grace@example.com"}, Organization: "COBOL Co", Account: demoAccount},
	})
}

func demoFiles() any {
	now := time.Now()
	return demoResponse("files", []drive.File{
		{ID: "demo-file-1", Name: "Board deck", MimeType: "application/vnd.google-apps.presentation", ModifiedTime: now.Add(-3 * time.Hour), Account: demoAccount},
		{ID: "demo-file-2", Name: "Hiring plan", MimeType: "application/vnd.google-apps.document", ModifiedTime: now.Add(-50 * time.Hour), Account: demoAccount},
	})
}
