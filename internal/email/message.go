package email

import (
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
)

// Address is one mailbox from an address header.
type Address struct {
	Name    string
	Address string
}

// Attachment is one decoded MIME part of a message. Inline parts
// referenced from the HTML body carry the Content-ID they are cited by,
// without the surrounding angle brackets.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Content     []byte
}

// ParsedEmail is the decoded view of one fetched message: headers,
// the first text and HTML bodies, and every non-text part.
type ParsedEmail struct {
	From        []Address
	To          []Address
	Subject     string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// SenderAddress returns the primary sender, lowercased, or "" when the
// message carries no usable origin.
func (e *ParsedEmail) SenderAddress() string {
	if len(e.From) == 0 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(e.From[0].Address))
}

// PlainBody returns the message text: the text part when present,
// otherwise the HTML part converted to plain text. HTML-only mail is
// common enough that callers working on text (captions, comment
// extraction, degraded rendering) should go through this instead of
// reading TextBody directly.
func (e *ParsedEmail) PlainBody() string {
	if e.TextBody != "" || e.HTMLBody == "" {
		return e.TextBody
	}

	text, err := html2text.FromString(e.HTMLBody, html2text.Options{OmitLinks: true})
	if err != nil {
		return e.HTMLBody
	}

	return text
}

// InlineAttachment returns the attachment cited by a Content-ID, if any.
func (e *ParsedEmail) InlineAttachment(cid string) (Attachment, bool) {
	for _, a := range e.Attachments {
		if a.ContentID != "" && a.ContentID == cid {
			return a, true
		}
	}

	return Attachment{}, false
}
