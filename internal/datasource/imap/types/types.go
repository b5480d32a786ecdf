package types

import (
	"strings"

	_imap "github.com/emersion/go-imap"
)

type Mailbox string

// Message is one fetched message: the server's envelope and flags plus
// the full RFC 822 source.
type Message struct {
	*_imap.Message

	RawBody []byte
}

// SenderAddress returns the envelope origin, lowercased, or "" when the
// envelope carries none.
func (m Message) SenderAddress() string {
	if m.Message == nil || m.Envelope == nil {
		return ""
	}

	addrs := m.Envelope.From
	if len(addrs) == 0 {
		addrs = m.Envelope.Sender
	}
	if len(addrs) == 0 || addrs[0] == nil {
		return ""
	}

	return strings.ToLower(addrs[0].Address())
}

// Subject returns the envelope subject, or "" without an envelope.
func (m Message) Subject() string {
	if m.Message == nil || m.Envelope == nil {
		return ""
	}

	return m.Envelope.Subject
}
