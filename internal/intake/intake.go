package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okibe/mailgram/internal/allowlist"
	"github.com/okibe/mailgram/internal/datasource/imap"
	"github.com/okibe/mailgram/internal/datasource/imap/types"
	"github.com/okibe/mailgram/internal/docstore"
	"github.com/okibe/mailgram/internal/email"
	"github.com/okibe/mailgram/internal/logger"
	"github.com/okibe/mailgram/internal/render"
	"github.com/okibe/mailgram/internal/routing"
	"github.com/okibe/mailgram/internal/telegram"
)

const defaultLookback = 24 * time.Hour

// MailDialer opens a fresh fetch connection. Every cycle gets its own,
// so a wedged fetch never poisons the next cycle or the idle watcher.
type MailDialer func() (imap.MailClient, error)

// DocumentRenderer is the slice of the renderer the pipeline needs.
type DocumentRenderer interface {
	TryRender(ctx context.Context, msg *email.ParsedEmail) (render.Result, error)
}

// Stats are running totals across cycles.
type Stats struct {
	Cycles    int64     `json:"cycles"`
	Delivered int64     `json:"delivered"`
	Degraded  int64     `json:"degraded"`
	Skipped   int64     `json:"skipped"`
	Failures  int64     `json:"failures"`
	LastCycle time.Time `json:"lastCycle"`
}

// CycleResult is the outcome of one sweep over the mailbox.
type CycleResult struct {
	Fetched   int
	Delivered int
	Degraded  int
	Skipped   int
	Failures  int
}

// Options fix where the pipeline reads from and delivers to.
type Options struct {
	Dial    MailDialer
	Mailbox string
	ChatID  int64
	// how far back unseen messages are considered; 24h when zero
	Lookback time.Duration
}

// Pipeline turns unseen mailbox messages into delivered documents. One
// cycle runs at a time; concurrent triggers queue up behind the mutex.
type Pipeline struct {
	opts Options

	allow     *allowlist.Store
	routes    *routing.Store
	renderer  DocumentRenderer
	documents *docstore.Store
	sink      telegram.Client

	log logger.Logger

	cycleMu sync.Mutex
	statsMu sync.Mutex
	stats   Stats
}

func NewPipeline(opts Options, allow *allowlist.Store, routes *routing.Store, renderer DocumentRenderer, documents *docstore.Store, sink telegram.Client) *Pipeline {
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}

	return &Pipeline{
		opts:      opts,
		allow:     allow,
		routes:    routes,
		renderer:  renderer,
		documents: documents,
		sink:      sink,
		log:       logger.GetLogger(),
	}
}

// RunCycle opens the mailbox, sweeps every unseen message from the
// lookback window through the pipeline and reports what happened.
// Failures are per message; only being unable to reach the mailbox at
// all fails the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleResult, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	client, err := p.opts.Dial()
	if err != nil {
		return CycleResult{}, fmt.Errorf("open mailbox: %w", err)
	}
	defer client.Logout()

	if err := ensureMailbox(client, p.opts.Mailbox); err != nil {
		return CycleResult{}, err
	}

	since := time.Now().Add(-p.opts.Lookback)
	msgs, err := client.FetchUnseen(types.Mailbox(p.opts.Mailbox), since)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch unseen messages: %w", err)
	}

	result := CycleResult{Fetched: len(msgs)}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		status, err := p.processMessage(ctx, msg)
		switch {
		case err != nil:
			result.Failures++
			p.log.Errorw("message processing failed",
				"seq", seqOf(msg),
				"error", err)
		case status == statusSkipped:
			result.Skipped++
		case status == statusDegraded:
			result.Delivered++
			result.Degraded++
		default:
			result.Delivered++
		}
	}

	p.recordCycle(result)

	p.log.Infow("intake cycle finished",
		"fetched", result.Fetched,
		"delivered", result.Delivered,
		"degraded", result.Degraded,
		"skipped", result.Skipped,
		"failures", result.Failures)

	return result, nil
}

// Snapshot returns the running totals for the status surface.
func (p *Pipeline) Snapshot() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	return p.stats
}

func (p *Pipeline) recordCycle(result CycleResult) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.Cycles++
	p.stats.Delivered += int64(result.Delivered)
	p.stats.Degraded += int64(result.Degraded)
	p.stats.Skipped += int64(result.Skipped)
	p.stats.Failures += int64(result.Failures)
	p.stats.LastCycle = time.Now()
}

type processStatus int

const (
	statusDelivered processStatus = iota
	statusDegraded
	statusSkipped
)

func (p *Pipeline) processMessage(ctx context.Context, msg types.Message) (processStatus, error) {
	parsed, err := email.Parse(msg.RawBody)
	if err != nil {
		return statusDelivered, fmt.Errorf("parse message: %w", err)
	}

	sender := parsed.SenderAddress()
	if sender == "" {
		sender = msg.SenderAddress()
	}

	allowed, err := p.allow.IsAllowed(sender)
	if err != nil {
		return statusDelivered, fmt.Errorf("allow-list check: %w", err)
	}
	if !allowed {
		p.log.Infow("sender not on the allow-list, skipping",
			"sender", sender,
			"subject", parsed.Subject)
		return statusSkipped, nil
	}

	rendered, err := p.renderer.TryRender(ctx, parsed)
	if err != nil {
		return statusDelivered, fmt.Errorf("render document: %w", err)
	}

	_, name, err := p.documents.Save(rendered.PDF)
	if err != nil {
		return statusDelivered, fmt.Errorf("persist document: %w", err)
	}

	topic, err := p.routes.Resolve(sender)
	if err != nil {
		return statusDelivered, fmt.Errorf("resolve route: %w", err)
	}

	doc := telegram.Document{
		ChatID:   p.opts.ChatID,
		TopicID:  topic,
		Filename: name,
		Content:  rendered.PDF,
		Caption:  buildCaption(sender, parsed.Subject, email.ExtractComment(parsed.PlainBody())),
	}

	err = p.sink.SendDocument(ctx, doc)
	if errors.Is(err, telegram.ErrTopicNotFound) && doc.TopicID > 0 {
		p.log.Warnw("routed topic is gone, delivering to the chat itself",
			"sender", sender,
			"topic", doc.TopicID)
		doc.TopicID = 0
		err = p.sink.SendDocument(ctx, doc)
	}
	if err != nil {
		return statusDelivered, fmt.Errorf("deliver document: %w", err)
	}

	if rendered.Degraded {
		return statusDegraded, nil
	}

	return statusDelivered, nil
}

// ensureMailbox checks the configured mailbox against the server's
// list before fetching, so a config typo fails with a clear error
// instead of a server-specific select failure.
func ensureMailbox(client imap.MailClient, name string) error {
	mailboxes, err := client.GetMailboxes()
	if err != nil {
		return fmt.Errorf("list mailboxes: %w", err)
	}

	for _, mailbox := range mailboxes {
		if string(mailbox) == name {
			return nil
		}
	}

	return fmt.Errorf("mailbox %q not found on the server", name)
}

func buildCaption(sender, subject, comment string) string {
	if subject == "" {
		subject = "(no subject)"
	}

	caption := fmt.Sprintf("%s: %s", sender, subject)
	if comment != "" {
		caption += "\n\n" + comment
	}

	return telegram.TruncateCaption(caption)
}

func seqOf(msg types.Message) uint32 {
	if msg.Message == nil {
		return 0
	}

	return msg.SeqNum
}
