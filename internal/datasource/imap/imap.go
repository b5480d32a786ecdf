package imap

import (
	"errors"
	"fmt"
	"io"
	"time"

	_imap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/okibe/mailgram/internal/datasource/imap/types"
	"github.com/okibe/mailgram/internal/logger"
)

// MailClient is the one-shot fetch side of the mailbox. The watcher
// only signals; every intake cycle opens its own client so a wedged
// fetch can never take the idle connection down with it.
type MailClient interface {
	GetMailboxes() ([]types.Mailbox, error)
	FetchUnseen(mailbox types.Mailbox, since time.Time) ([]types.Message, error)
	Logout() error
}

func GetMailClient(addr, username, password string) (MailClient, error) {
	emailClient, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := emailClient.Login(username, password); err != nil {
		return nil, fmt.Errorf("login %s: %w", username, err)
	}

	return &mailClientImpl{client: emailClient}, nil
}

type mailClientImpl struct {
	client *client.Client
}

func (m mailClientImpl) GetMailboxes() ([]types.Mailbox, error) {
	rawMailboxes := make(chan *_imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", rawMailboxes)
	}()

	var mailboxes []types.Mailbox
	for info := range rawMailboxes {
		mailboxes = append(mailboxes, types.Mailbox(info.Name))
	}

	if err := <-done; err != nil {
		return nil, err
	}

	return mailboxes, nil
}

// FetchUnseen returns every message in the mailbox that is still unseen
// and younger than since. Fetching the body section without .PEEK sets
// \Seen on the server, which is what keeps a message from being picked
// up twice.
func (m mailClientImpl) FetchUnseen(mailbox types.Mailbox, since time.Time) ([]types.Message, error) {
	log := logger.GetLogger()

	if _, err := m.client.Select(string(mailbox), false); err != nil {
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}

	criteria := _imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{_imap.SeenFlag}
	criteria.Since = since

	ids, err := m.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mailbox, err)
	}

	log.Infow("unseen messages",
		"mailbox", mailbox,
		"count", len(ids))

	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(_imap.SeqSet)
	seqset.AddNum(ids...)

	var section _imap.BodySectionName
	items := []_imap.FetchItem{section.FetchItem(), _imap.FetchEnvelope, _imap.FetchInternalDate}

	messages := make(chan *_imap.Message, 100)
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, items, messages)
	}()

	var fetched []types.Message
	for msg := range messages {
		body, err := readMessageBody(msg)
		if err != nil {
			log.Warnw("skipping message without readable body",
				"seq", msg.SeqNum,
				"error", err)
			continue
		}

		fetched = append(fetched, types.Message{Message: msg, RawBody: body})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", mailbox, err)
	}

	return fetched, nil
}

func readMessageBody(msg *_imap.Message) ([]byte, error) {
	var section _imap.BodySectionName
	r := msg.GetBody(&section)
	if r == nil {
		return nil, errors.New("server returned no body section")
	}

	return io.ReadAll(r)
}

func (m mailClientImpl) Logout() error {
	return m.client.Logout()
}
