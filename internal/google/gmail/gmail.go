// Package gmail fetches and acts on one account's mailbox.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/command-center/internal/google"
	"golang.org/x/sync/errgroup"
	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	defaultMax = 20
	maxResults = 100
	// metadata lookups in flight per account
	fetchParallelism = 5
)

// ErrUnknownAction is returned by Modify for an unsupported action.
var ErrUnknownAction = errors.New("gmail: unknown action")

// Email is the inbox view of one message.
type Email struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"threadId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
	Unread   bool      `json:"unread"`
	Starred  bool      `json:"starred"`
	Labels   []string  `json:"labels"`
	Account  string    `json:"account"`
}

// Message is a full message with its decoded bodies.
type Message struct {
	Email
	Cc         string `json:"cc,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	References string `json:"references,omitempty"`
	Text       string `json:"text"`
	HTML       string `json:"html,omitempty"`
}

// Query selects messages to list.
type Query struct {
	Q      string
	Max    int64
	Labels []string
}

// Client talks to Gmail through the shared factory.
type Client struct {
	f *google.Factory
}

// New creates a Client.
func New(f *google.Factory) *Client {
	return &Client{f: f}
}

// List lists matching message ids, then fetches each one's metadata.
// Results keep the API's newest-first order.
func (c *Client) List(ctx context.Context, acct google.Account, q Query) ([]Email, error) {
	svc, err := c.f.Gmail(ctx, acct)
	if err != nil {
		return nil, err
	}

	max := q.Max
	if max <= 0 {
		max = defaultMax
	}
	if max > maxResults {
		max = maxResults
	}

	var resp *gmailapi.ListMessagesResponse
	err = c.f.Call(ctx, acct, google.ServiceGmail, func() error {
		call := svc.Users.Messages.List("me").MaxResults(max).Context(ctx)
		if q.Q != "" {
			call = call.Q(q.Q)
		}
		if len(q.Labels) > 0 {
			call = call.LabelIds(q.Labels...)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", acct.Email, err)
	}

	out := make([]Email, len(resp.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i, m := range resp.Messages {
		g.Go(func() error {
			var msg *gmailapi.Message
			err := c.f.Call(gctx, acct, google.ServiceGmail, func() error {
				var err error
				msg, err = svc.Users.Messages.Get("me", m.Id).
					Format("metadata").
					MetadataHeaders("From", "To", "Subject", "Date").
					Context(gctx).
					Do()
				return err
			})
			if err != nil {
				return fmt.Errorf("get message %s for %s: %w", m.Id, acct.Email, err)
			}
			out[i] = toEmail(msg, acct.Email)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Search runs a Gmail query for universal search.
func (c *Client) Search(ctx context.Context, acct google.Account, q string, max int64) ([]Email, error) {
	return c.List(ctx, acct, Query{Q: q, Max: max})
}

// Get returns a full message with its text and HTML bodies.
func (c *Client) Get(ctx context.Context, acct google.Account, id string) (*Message, error) {
	svc, err := c.f.Gmail(ctx, acct)
	if err != nil {
		return nil, err
	}
	var msg *gmailapi.Message
	err = c.f.Call(ctx, acct, google.ServiceGmail, func() error {
		var err error
		msg, err = svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get message %s for %s: %w", id, acct.Email, err)
	}

	out := &Message{Email: toEmail(msg, acct.Email)}
	if msg.Payload != nil {
		out.Cc = header(msg.Payload.Headers, "Cc")
		out.MessageID = header(msg.Payload.Headers, "Message-ID")
		out.References = header(msg.Payload.Headers, "References")
		out.Text, out.HTML = bodies(msg.Payload)
	}
	return out, nil
}

// Actions accepted by Modify.
const (
	ActionArchive = "archive"
	ActionRead    = "read"
	ActionUnread  = "unread"
	ActionStar    = "star"
	ActionUnstar  = "unstar"
	ActionTrash   = "trash"
	ActionUntrash = "untrash"
)

var labelChanges = map[string]struct{ add, remove []string }{
	ActionArchive: {remove: []string{"INBOX"}},
	ActionRead:    {remove: []string{"UNREAD"}},
	ActionUnread:  {add: []string{"UNREAD"}},
	ActionStar:    {add: []string{"STARRED"}},
	ActionUnstar:  {remove: []string{"STARRED"}},
}

// ValidAction reports whether Modify accepts action.
func ValidAction(action string) bool {
	_, ok := labelChanges[action]
	return ok || action == ActionTrash || action == ActionUntrash
}

// Modify applies action to every message in ids.
func (c *Client) Modify(ctx context.Context, acct google.Account, action string, ids []string) error {
	if !ValidAction(action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if len(ids) == 0 {
		return nil
	}
	svc, err := c.f.Gmail(ctx, acct)
	if err != nil {
		return err
	}

	if change, ok := labelChanges[action]; ok {
		err = c.f.Call(ctx, acct, google.ServiceGmail, func() error {
			return svc.Users.Messages.BatchModify("me", &gmailapi.BatchModifyMessagesRequest{
				Ids:            ids,
				AddLabelIds:    change.add,
				RemoveLabelIds: change.remove,
			}).Context(ctx).Do()
		})
		if err != nil {
			return fmt.Errorf("%s %d messages for %s: %w", action, len(ids), acct.Email, err)
		}
		return nil
	}

	for _, id := range ids {
		err := c.f.Call(ctx, acct, google.ServiceGmail, func() error {
			var err error
			if action == ActionTrash {
				_, err = svc.Users.Messages.Trash("me", id).Context(ctx).Do()
			} else {
				_, err = svc.Users.Messages.Untrash("me", id).Context(ctx).Do()
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("%s message %s for %s: %w", action, id, acct.Email, err)
		}
	}
	return nil
}

func toEmail(msg *gmailapi.Message, account string) Email {
	e := Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
		Date:     time.UnixMilli(msg.InternalDate).UTC(),
		Account:  account,
	}
	for _, l := range msg.LabelIds {
		switch l {
		case "UNREAD":
			e.Unread = true
		case "STARRED":
			e.Starred = true
		}
	}
	if msg.Payload != nil {
		e.From = header(msg.Payload.Headers, "From")
		e.To = header(msg.Payload.Headers, "To")
		e.Subject = header(msg.Payload.Headers, "Subject")
	}
	return e
}

func header(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
