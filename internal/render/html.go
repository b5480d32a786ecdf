package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/vincent-petithory/dataurl"

	"github.com/okibe/mailgram/internal/email"
)

const documentCSS = `
@page { size: A4; margin: 15mm; }
html { -webkit-print-color-adjust: exact; }
body { font-family: "Segoe UI", Roboto, Helvetica, Arial, sans-serif; font-size: 11pt; color: #1f2328; margin: 0; }
.mail-header { border-bottom: 2px solid #d0d7de; padding-bottom: 10px; margin-bottom: 16px; }
.mail-header h1 { font-size: 16pt; margin: 0 0 8px 0; }
.mail-header table { border-collapse: collapse; font-size: 9pt; color: #57606a; }
.mail-header td { padding: 1px 10px 1px 0; vertical-align: top; }
.mail-header td.k { font-weight: 600; white-space: nowrap; }
.mail-body { line-height: 1.45; }
.mail-body pre { white-space: pre-wrap; overflow-wrap: break-word; font: inherit; margin: 0; }
.mail-body img { max-width: 100%; }
.mail-attachments { margin-top: 20px; border-top: 1px solid #d0d7de; padding-top: 8px; font-size: 9pt; color: #57606a; }
.mail-attachments ul { margin: 4px 0 0 0; padding-left: 18px; }
`

// bodyPolicy keeps the markup mail clients produce (tables, inline
// styles, embedded images) while stripping anything active.
var bodyPolicy = newBodyPolicy()

func newBodyPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowAttrs("style").Globally()
	p.AllowElements("font", "center")

	return p
}

// composeHTML builds the printable document: a header block with the
// escaped message headers, the message body, and a list of attached
// files. Inline images cited by cid: references are embedded as data
// URIs so the document renders without touching the network.
func composeHTML(msg *email.ParsedEmail) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(msg.Subject))
	fmt.Fprintf(&b, "<style>%s</style>\n</head>\n<body>\n", documentCSS)

	b.WriteString("<div class=\"mail-header\">\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n<table>\n", html.EscapeString(msg.Subject))
	writeHeaderRow(&b, "From", formatAddresses(msg.From))
	writeHeaderRow(&b, "To", formatAddresses(msg.To))
	if !msg.Date.IsZero() {
		writeHeaderRow(&b, "Date", msg.Date.Format("Mon, 2 Jan 2006 15:04 MST"))
	}
	b.WriteString("</table>\n</div>\n")

	b.WriteString("<div class=\"mail-body\">\n")
	if msg.HTMLBody != "" {
		b.WriteString(bodyPolicy.Sanitize(embedInlineImages(msg.HTMLBody, msg.Attachments)))
	} else {
		fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(msg.TextBody))
	}
	b.WriteString("\n</div>\n")

	writeAttachmentList(&b, msg.Attachments)

	b.WriteString("</body>\n</html>\n")

	return b.String()
}

// composeFallbackHTML is the degraded rendition: headers and body as
// preformatted text, nothing else that could trip the engine up.
func composeFallbackHTML(msg *email.ParsedEmail) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<style>@page { size: A4; margin: 15mm; } body { font-family: monospace; font-size: 10pt; } pre { white-space: pre-wrap; overflow-wrap: break-word; }</style>\n")
	b.WriteString("</head>\n<body>\n<pre>")

	fmt.Fprintf(&b, "Subject: %s\n", html.EscapeString(msg.Subject))
	fmt.Fprintf(&b, "From: %s\n", html.EscapeString(formatAddresses(msg.From)))
	if len(msg.To) > 0 {
		fmt.Fprintf(&b, "To: %s\n", html.EscapeString(formatAddresses(msg.To)))
	}
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("Mon, 2 Jan 2006 15:04 MST"))
	}
	b.WriteString("\n")
	b.WriteString(html.EscapeString(msg.PlainBody()))

	b.WriteString("</pre>\n</body>\n</html>\n")

	return b.String()
}

func embedInlineImages(htmlBody string, attachments []email.Attachment) string {
	for _, att := range attachments {
		if att.ContentID == "" {
			continue
		}

		uri := dataurl.New(att.Content, att.ContentType).String()
		htmlBody = strings.ReplaceAll(htmlBody, "cid:"+att.ContentID, uri)
	}

	return htmlBody
}

func writeHeaderRow(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}

	fmt.Fprintf(b, "<tr><td class=\"k\">%s</td><td>%s</td></tr>\n",
		html.EscapeString(key), html.EscapeString(value))
}

func writeAttachmentList(b *strings.Builder, attachments []email.Attachment) {
	var listed []email.Attachment
	for _, att := range attachments {
		if !att.Inline {
			listed = append(listed, att)
		}
	}

	if len(listed) == 0 {
		return
	}

	b.WriteString("<div class=\"mail-attachments\">Attached files\n<ul>\n")
	for _, att := range listed {
		fmt.Fprintf(b, "<li>%s (%s, %s)</li>\n",
			html.EscapeString(att.Filename), html.EscapeString(att.ContentType), formatSize(len(att.Content)))
	}
	b.WriteString("</ul>\n</div>\n")
}

func formatAddresses(addrs []email.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			parts = append(parts, a.Address)
		}
	}

	return strings.Join(parts, ", ")
}

func formatSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}
