// Package drive lists an account's recently modified Drive files.
package drive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/command-center/internal/google"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	defaultMax = 20
	maxResults = 100
	fileFields = "files(id,name,mimeType,webViewLink,iconLink,modifiedTime,owners(displayName,emailAddress))"
)

// File is the dashboard view of one Drive file.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
	IconLink     string    `json:"iconLink,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Owners       []string  `json:"owners,omitempty"`
	Account      string    `json:"account"`
}

// Client talks to Google Drive through the shared factory.
type Client struct {
	f *google.Factory
}

// New creates a Client.
func New(f *google.Factory) *Client {
	return &Client{f: f}
}

// List returns untrashed files newest first. q is an optional Drive query
// ANDed with the trash filter.
func (c *Client) List(ctx context.Context, acct google.Account, q string, max int64) ([]File, error) {
	svc, err := c.f.Drive(ctx, acct)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = defaultMax
	}
	if max > maxResults {
		max = maxResults
	}
	query := "trashed = false"
	if q != "" {
		query = "(" + q + ") and " + query
	}

	var resp *driveapi.FileList
	err = c.f.Call(ctx, acct, google.ServiceDrive, func() error {
		var err error
		resp, err = svc.Files.List().
			Q(query).
			OrderBy("modifiedTime desc").
			PageSize(max).
			Fields(googleapi.Field(fileFields)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", acct.Email, err)
	}

	out := make([]File, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, toFile(f, acct.Email))
	}
	return out, nil
}

// Search returns files whose name contains term.
func (c *Client) Search(ctx context.Context, acct google.Account, term string, max int64) ([]File, error) {
	return c.List(ctx, acct, fmt.Sprintf("name contains '%s'", EscapeQuery(term)), max)
}

// EscapeQuery escapes a literal for use inside a single-quoted Drive query.
func EscapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func toFile(f *driveapi.File, account string) File {
	out := File{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		WebViewLink: f.WebViewLink,
		IconLink:    f.IconLink,
		Account:     account,
	}
	out.ModifiedTime, _ = time.Parse(time.RFC3339, f.ModifiedTime)
	for _, o := range f.Owners {
		if o.EmailAddress != "" {
			out.Owners = append(out.Owners, o.EmailAddress)
		} else if o.DisplayName != "" {
			out.Owners = append(out.Owners, o.DisplayName)
		}
	}
	return out
}
