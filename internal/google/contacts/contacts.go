// Package contacts reads an account's Google contacts through the People API.
package contacts

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pysugar/command-center/internal/google"
	"google.golang.org/api/people/v1"
)

const (
	pageSize     = 1000
	personFields = "names,emailAddresses,phoneNumbers,organizations,photos"
)

// Contact is the dashboard view of one connection.
type Contact struct {
	ResourceName string   `json:"resourceName"`
	Name         string   `json:"name"`
	Emails       []string `json:"emails"`
	Phones       []string `json:"phones,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Title        string   `json:"title,omitempty"`
	PhotoURL     string   `json:"photoUrl,omitempty"`
	Account      string   `json:"account"`
}

// Client talks to the People API through the shared factory.
type Client struct {
	f        *google.Factory
	maxPages int
}

// New creates a Client. maxPages bounds pagination; 0 follows
// nextPageToken until it is absent.
func New(f *google.Factory, maxPages int) *Client {
	return &Client{f: f, maxPages: maxPages}
}

// List returns every connection of acct, one page request at a time.
func (c *Client) List(ctx context.Context, acct google.Account) ([]Contact, error) {
	svc, err := c.f.People(ctx, acct)
	if err != nil {
		return nil, err
	}

	var out []Contact
	pageToken := ""
	for page := 1; ; page++ {
		var resp *people.ListConnectionsResponse
		err := c.f.Call(ctx, acct, google.ServicePeople, func() error {
			call := svc.People.Connections.List("people/me").
				PersonFields(personFields).
				PageSize(pageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list contacts page %d for %s: %w", page, acct.Email, err)
		}
		for _, p := range resp.Connections {
			out = append(out, toContact(p, acct.Email))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
		if c.maxPages > 0 && page >= c.maxPages {
			log.Printf("⚠️ Contacts for %s truncated at %d pages", acct.Email, page)
			break
		}
	}
	return out, nil
}

// Search lists connections and keeps those whose name, email or
// organization contains q, case-insensitively.
func (c *Client) Search(ctx context.Context, acct google.Account, q string) ([]Contact, error) {
	all, err := c.List(ctx, acct)
	if err != nil {
		return nil, err
	}
	return Filter(all, q), nil
}

// Filter keeps contacts matching q. An empty q keeps everything.
func Filter(list []Contact, q string) []Contact {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return list
	}
	var out []Contact
	for _, ct := range list {
		if matches(ct, q) {
			out = append(out, ct)
		}
	}
	return out
}

func matches(ct Contact, q string) bool {
	if strings.Contains(strings.ToLower(ct.Name), q) || strings.Contains(strings.ToLower(ct.Organization), q) {
		return true
	}
	for _, e := range ct.Emails {
		if strings.Contains(strings.ToLower(e), q) {
			return true
		}
	}
	return false
}

func toContact(p *people.Person, account string) Contact {
	ct := Contact{ResourceName: p.ResourceName, Account: account}
	if len(p.Names) > 0 {
		ct.Name = p.Names[0].DisplayName
	}
	for _, e := range p.EmailAddresses {
		ct.Emails = append(ct.Emails, e.Value)
	}
	for _, ph := range p.PhoneNumbers {
		ct.Phones = append(ct.Phones, ph.Value)
	}
	if len(p.Organizations) > 0 {
		ct.Organization = p.Organizations[0].Name
		ct.Title = p.Organizations[0].Title
	}
	if len(p.Photos) > 0 {
		ct.PhotoURL = p.Photos[0].Url
	}
	if ct.Name == "" && len(ct.Emails) > 0 {
		ct.Name = ct.Emails[0]
	}
	return ct
}
