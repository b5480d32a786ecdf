package render

import (
	"strings"
	"testing"
	"time"

	"github.com/okibe/mailgram/internal/email"
)

func TestComposeHTMLEscapesHeaders(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  `<script>alert("subject")</script>`,
		From:     []email.Address{{Name: `Eve <evil>`, Address: "eve@example.com"}},
		Date:     time.Date(2022, time.March, 4, 9, 30, 0, 0, time.UTC),
		TextBody: "plain body",
	}

	doc := composeHTML(msg)

	if strings.Contains(doc, `<script>alert`) {
		t.Error("subject reached the document unescaped")
	}
	if !strings.Contains(doc, "&lt;script&gt;") {
		t.Error("escaped subject missing from the document")
	}
	if !strings.Contains(doc, "Eve &lt;evil&gt;") {
		t.Error("escaped sender name missing from the document")
	}
}

func TestComposeHTMLEmbedsInlineImages(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  "with logo",
		HTMLBody: `<p>hello <img src="cid:logo123"></p>`,
		Attachments: []email.Attachment{{
			Filename:    "logo.png",
			ContentType: "image/png",
			ContentID:   "logo123",
			Inline:      true,
			Content:     []byte{0x89, 'P', 'N', 'G'},
		}},
	}

	doc := composeHTML(msg)

	if strings.Contains(doc, "cid:logo123") {
		t.Error("cid reference survived embedding")
	}
	if !strings.Contains(doc, "data:image/png;base64,") {
		t.Error("data URI for the inline image missing")
	}
}

func TestComposeHTMLStripsActiveContent(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  "hostile",
		HTMLBody: `<p onmouseover="steal()">hi</p><script>steal()</script><iframe src="https://evil.example"></iframe>`,
	}

	doc := composeHTML(msg)

	for _, forbidden := range []string{"<script", "<iframe", "onmouseover"} {
		if strings.Contains(doc, forbidden) {
			t.Errorf("document still contains %q", forbidden)
		}
	}
	if !strings.Contains(doc, "hi") {
		t.Error("benign content was stripped along with the hostile bits")
	}
}

func TestComposeHTMLTextOnlyMessage(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  "plain",
		TextBody: "line one\nline <two>",
	}

	doc := composeHTML(msg)

	if !strings.Contains(doc, "<pre>line one\nline &lt;two&gt;</pre>") {
		t.Errorf("text body not rendered as escaped pre block:\n%s", doc)
	}
}

func TestComposeHTMLAttachmentList(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  "files",
		TextBody: "see files",
		Attachments: []email.Attachment{
			{Filename: "invoice.pdf", ContentType: "application/pdf", Content: make([]byte, 2048)},
			{Filename: "logo.png", ContentType: "image/png", ContentID: "logo", Inline: true, Content: []byte{1}},
		},
	}

	doc := composeHTML(msg)

	if !strings.Contains(doc, "invoice.pdf") {
		t.Error("attached file missing from the list")
	}
	if !strings.Contains(doc, "2.0 KiB") {
		t.Error("attachment size missing from the list")
	}
	if strings.Contains(doc, "<li>logo.png") {
		t.Error("inline image should not appear in the attachment list")
	}
}

func TestComposeFallbackHTML(t *testing.T) {
	t.Parallel()

	msg := &email.ParsedEmail{
		Subject:  "fallback",
		From:     []email.Address{{Address: "alice@example.com"}},
		To:       []email.Address{{Name: "Bob", Address: "bob@example.net"}},
		HTMLBody: "<p>only <b>html</b> here</p>",
	}

	doc := composeFallbackHTML(msg)

	if !strings.Contains(doc, "Subject: fallback") {
		t.Error("fallback is missing the subject line")
	}
	if !strings.Contains(doc, "From: alice@example.com") {
		t.Error("fallback is missing the sender line")
	}
	if !strings.Contains(doc, "To: Bob &lt;bob@example.net&gt;") {
		t.Error("fallback is missing the recipient line")
	}
	if !strings.Contains(doc, "only html here") {
		t.Errorf("fallback should carry the text extracted from HTML:\n%s", doc)
	}
	if strings.Contains(doc, "<b>") {
		t.Error("fallback must not contain markup from the message")
	}
}
