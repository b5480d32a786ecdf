package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"

	// registers decoders for non-UTF-8 charsets found in the wild
	_ "github.com/emersion/go-message/charset"
)

// Parse decodes a raw RFC 822 message. Broken parts are skipped rather
// than failing the whole message; only an unreadable envelope is fatal.
func Parse(raw []byte) (*ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedEmail{}

	parsed.Subject, _ = mr.Header.Subject()
	parsed.Date, _ = mr.Header.Date()
	parsed.From = addressList(mr.Header.AddressList("From"))
	if len(parsed.From) == 0 {
		parsed.From = addressList(mr.Header.AddressList("Sender"))
	}
	parsed.To = addressList(mr.Header.AddressList("To"))

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// the remainder of the message is unreadable; keep what we have
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && parsed.TextBody == "":
				parsed.TextBody = decodeText(content)
			case strings.HasPrefix(contentType, "text/html") && parsed.HTMLBody == "":
				parsed.HTMLBody = decodeText(content)
			default:
				parsed.Attachments = append(parsed.Attachments, buildAttachment(
					params["name"], contentType, h.Get("Content-Id"), true, content))
			}

		case *mail.AttachmentHeader:
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			parsed.Attachments = append(parsed.Attachments, buildAttachment(
				filename, contentType, h.Get("Content-Id"), false, content))
		}
	}

	return parsed, nil
}

func addressList(addrs []*mail.Address, err error) []Address {
	if err != nil || len(addrs) == 0 {
		return nil
	}

	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Address{Name: a.Name, Address: a.Address})
	}

	return out
}

func buildAttachment(filename, contentType, contentID string, inline bool, content []byte) Attachment {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(content).String()
	}

	if filename == "" {
		ext := mimetype.Detect(content).Extension()
		if ext == "" {
			ext = ".bin"
		}
		filename = "attachment" + ext
	}

	return Attachment{
		Filename:    filename,
		ContentType: contentType,
		ContentID:   strings.Trim(contentID, "<>"),
		Inline:      inline,
		Content:     content,
	}
}

// decodeText covers bodies that declare no charset but are not UTF-8;
// declared charsets are already decoded by the reader.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}

	return string(decoded)
}
