// Package calendar lists and edits events on an account's primary calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/command-center/internal/google"
	calendarapi "google.golang.org/api/calendar/v3"
)

const (
	calendarID = "primary"
	defaultMax = 50
	dateLayout = "2006-01-02"
)

// ErrInvalidEvent is returned for event input that cannot be sent.
var ErrInvalidEvent = errors.New("calendar: invalid event")

// Event is the dashboard view of one calendar event.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	Status      string    `json:"status,omitempty"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	MeetLink    string    `json:"meetLink,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Account     string    `json:"account"`
}

// ListOptions bound the listed window. Zero TimeMin means now.
type ListOptions struct {
	TimeMin time.Time
	TimeMax time.Time
	Max     int64
}

// EventInput carries fields to create or patch. Nil fields are left out
// of a patch. Start and End take RFC 3339 timestamps or YYYY-MM-DD for
// all-day events.
type EventInput struct {
	Summary     *string  `json:"summary,omitempty"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Start       *string  `json:"start,omitempty"`
	End         *string  `json:"end,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

// Client talks to Google Calendar through the shared factory.
type Client struct {
	f   *google.Factory
	now func() time.Time
}

// New creates a Client.
func New(f *google.Factory) *Client {
	return &Client{f: f, now: time.Now}
}

// List returns upcoming single events ordered by start time.
func (c *Client) List(ctx context.Context, acct google.Account, opts ListOptions) ([]Event, error) {
	svc, err := c.f.Calendar(ctx, acct)
	if err != nil {
		return nil, err
	}
	min := opts.TimeMin
	if min.IsZero() {
		min = c.now()
	}
	max := opts.Max
	if max <= 0 {
		max = defaultMax
	}

	var resp *calendarapi.Events
	err = c.f.Call(ctx, acct, google.ServiceCalendar, func() error {
		call := svc.Events.List(calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(min.Format(time.RFC3339)).
			MaxResults(max).
			Context(ctx)
		if !opts.TimeMax.IsZero() {
			call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", acct.Email, err)
	}

	out := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		out = append(out, toEvent(item, acct.Email))
	}
	return out, nil
}

// Create inserts a new event. Summary and Start are required; End
// defaults to one hour after Start (or the next day for all-day events).
func (c *Client) Create(ctx context.Context, acct google.Account, in EventInput) (*Event, error) {
	if in.Summary == nil || *in.Summary == "" || in.Start == nil {
		return nil, fmt.Errorf("%w: summary and start are required", ErrInvalidEvent)
	}
	ev, err := in.apply(&calendarapi.Event{})
	if err != nil {
		return nil, err
	}
	if ev.End == nil {
		ev.End = defaultEnd(ev.Start)
	}

	svc, err := c.f.Calendar(ctx, acct)
	if err != nil {
		return nil, err
	}
	var created *calendarapi.Event
	err = c.f.Call(ctx, acct, google.ServiceCalendar, func() error {
		var err error
		created, err = svc.Events.Insert(calendarID, ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create event for %s: %w", acct.Email, err)
	}
	out := toEvent(created, acct.Email)
	return &out, nil
}

// Patch updates the given fields of an event.
func (c *Client) Patch(ctx context.Context, acct google.Account, id string, in EventInput) (*Event, error) {
	ev, err := in.apply(&calendarapi.Event{})
	if err != nil {
		return nil, err
	}
	svc, err := c.f.Calendar(ctx, acct)
	if err != nil {
		return nil, err
	}
	var patched *calendarapi.Event
	err = c.f.Call(ctx, acct, google.ServiceCalendar, func() error {
		var err error
		patched, err = svc.Events.Patch(calendarID, id, ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("patch event %s for %s: %w", id, acct.Email, err)
	}
	out := toEvent(patched, acct.Email)
	return &out, nil
}

// Delete removes an event.
func (c *Client) Delete(ctx context.Context, acct google.Account, id string) error {
	svc, err := c.f.Calendar(ctx, acct)
	if err != nil {
		return err
	}
	err = c.f.Call(ctx, acct, google.ServiceCalendar, func() error {
		return svc.Events.Delete(calendarID, id).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("delete event %s for %s: %w", id, acct.Email, err)
	}
	return nil
}

func (in EventInput) apply(ev *calendarapi.Event) (*calendarapi.Event, error) {
	if in.Summary != nil {
		ev.Summary = *in.Summary
	}
	if in.Description != nil {
		ev.Description = *in.Description
	}
	if in.Location != nil {
		ev.Location = *in.Location
	}
	if in.Start != nil {
		dt, err := parseWhen(*in.Start)
		if err != nil {
			return nil, err
		}
		ev.Start = dt
	}
	if in.End != nil {
		dt, err := parseWhen(*in.End)
		if err != nil {
			return nil, err
		}
		ev.End = dt
	}
	for _, a := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &calendarapi.EventAttendee{Email: a})
	}
	return ev, nil
}

func parseWhen(s string) (*calendarapi.EventDateTime, error) {
	if _, err := time.Parse(dateLayout, s); err == nil {
		return &calendarapi.EventDateTime{Date: s}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad time %q", ErrInvalidEvent, s)
	}
	return &calendarapi.EventDateTime{DateTime: t.Format(time.RFC3339)}, nil
}

func defaultEnd(start *calendarapi.EventDateTime) *calendarapi.EventDateTime {
	if start.Date != "" {
		d, _ := time.Parse(dateLayout, start.Date)
		return &calendarapi.EventDateTime{Date: d.AddDate(0, 0, 1).Format(dateLayout)}
	}
	t, _ := time.Parse(time.RFC3339, start.DateTime)
	return &calendarapi.EventDateTime{DateTime: t.Add(time.Hour).Format(time.RFC3339)}
}

func toEvent(item *calendarapi.Event, account string) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		HTMLLink:    item.HtmlLink,
		MeetLink:    item.HangoutLink,
		Account:     account,
	}
	if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}
	ev.Start, ev.AllDay = when(item.Start)
	ev.End, _ = when(item.End)
	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

func when(dt *calendarapi.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ := time.Parse(dateLayout, dt.Date)
	return t, true
}
