package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/pysugar/command-center/internal/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrNoRecipients is returned by Send when To is empty.
var ErrNoRecipients = errors.New("gmail: no recipients")

// Draft is an outgoing message. Setting ThreadID and InReplyTo sends it
// as a reply within that thread.
type Draft struct {
	From      string   `json:"-"`
	To        []string `json:"to"`
	Cc        []string `json:"cc,omitempty"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	HTML      bool     `json:"html,omitempty"`
	ThreadID  string   `json:"threadId,omitempty"`
	InReplyTo string   `json:"inReplyTo,omitempty"`
}

// Sent identifies a sent message.
type Sent struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Account  string `json:"account"`
}

// BuildRFC2822 renders d as an RFC 2822 message.
func BuildRFC2822(d Draft, now time.Time) ([]byte, error) {
	if len(d.To) == 0 {
		return nil, ErrNoRecipients
	}
	for _, addr := range append(append([]string{}, d.To...), d.Cc...) {
		if strings.ContainsAny(addr, "\r\n") {
			return nil, fmt.Errorf("gmail: invalid address %q", addr)
		}
	}
	if strings.ContainsAny(d.Subject, "\r\n") || strings.ContainsAny(d.InReplyTo, "\r\n") {
		return nil, errors.New("gmail: header values must be single line")
	}

	var buf bytes.Buffer
	writeHeader := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
		}
	}
	writeHeader("From", d.From)
	writeHeader("To", strings.Join(d.To, ", "))
	writeHeader("Cc", strings.Join(d.Cc, ", "))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", d.Subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("In-Reply-To", d.InReplyTo)
	writeHeader("References", d.InReplyTo)
	writeHeader("MIME-Version", "1.0")
	if d.HTML {
		writeHeader("Content-Type", `text/html; charset="UTF-8"`)
	} else {
		writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(d.Body, "\r\n", "\n"), "\n", "\r\n"))
	return buf.Bytes(), nil
}

// Send sends d from acct.
func (c *Client) Send(ctx context.Context, acct google.Account, d Draft) (*Sent, error) {
	if d.From == "" {
		d.From = acct.Email
	}
	raw, err := BuildRFC2822(d, time.Now())
	if err != nil {
		return nil, err
	}
	svc, err := c.f.Gmail(ctx, acct)
	if err != nil {
		return nil, err
	}

	msg := &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: d.ThreadID,
	}
	var sent *gmailapi.Message
	err = c.f.Call(ctx, acct, google.ServiceGmail, func() error {
		var err error
		sent, err = svc.Users.Messages.Send("me", msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("send message for %s: %w", acct.Email, err)
	}
	return &Sent{ID: sent.Id, ThreadID: sent.ThreadId, Account: acct.Email}, nil
}
