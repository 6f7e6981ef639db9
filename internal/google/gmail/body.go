package gmail

import (
	"encoding/base64"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

// bodies walks the MIME tree and returns the first text/plain and
// text/html parts. Attachments are skipped.
func bodies(part *gmailapi.MessagePart) (text, html string) {
	var walk func(p *gmailapi.MessagePart)
	walk = func(p *gmailapi.MessagePart) {
		if p == nil || p.Filename != "" {
			return
		}
		mime := strings.ToLower(p.MimeType)
		if p.Body != nil && p.Body.Data != "" {
			switch {
			case mime == "text/plain" && text == "":
				text = decodeBody(p.Body.Data)
			case mime == "text/html" && html == "":
				html = decodeBody(p.Body.Data)
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return text, html
}

// decodeBody decodes Gmail's base64url body data, padded or not.
func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return string(b)
}
