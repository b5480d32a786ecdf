package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okibe/mailgram/internal/allowlist"
	"github.com/okibe/mailgram/internal/intake"
	"github.com/okibe/mailgram/internal/logger"
	"github.com/okibe/mailgram/internal/routing"
	"github.com/okibe/mailgram/internal/telegram"
)

const (
	defaultPollTimeout = 30 * time.Second
	pollRetryWait      = 5 * time.Second
)

// CycleRunner is the slice of the pipeline the commands need.
type CycleRunner interface {
	RunCycle(ctx context.Context) (intake.CycleResult, error)
	Snapshot() intake.Stats
}

// Listener serves administrative commands sent to the destination chat:
// allow-list edits, routing edits, manual checks and status.
type Listener struct {
	client       telegram.Client
	chatID       int64
	allow        *allowlist.Store
	routes       *routing.Store
	pipeline     CycleRunner
	watcherState func() string

	pollTimeout time.Duration
	log         logger.Logger
}

func NewListener(client telegram.Client, chatID int64, allow *allowlist.Store, routes *routing.Store, pipeline CycleRunner, watcherState func() string) *Listener {
	return &Listener{
		client:       client,
		chatID:       chatID,
		allow:        allow,
		routes:       routes,
		pipeline:     pipeline,
		watcherState: watcherState,
		pollTimeout:  defaultPollTimeout,
		log:          logger.GetLogger(),
	}
}

// Run long-polls the bot API for commands until the context ends.
func (l *Listener) Run(ctx context.Context) error {
	l.checkTopicSupport(ctx)

	var offset int64

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := l.client.GetUpdates(ctx, offset, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			l.log.Warnw("command poll failed",
				"error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryWait):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			l.handleUpdate(ctx, update)
		}
	}
}

// checkTopicSupport warns when the routing table names topics but the
// chat has none enabled; every routed delivery would bounce and retry
// plain otherwise, with nothing pointing at the cause.
func (l *Listener) checkTopicSupport(ctx context.Context) {
	cfg, err := l.routes.Load()
	if err != nil || (cfg.DefaultTopic == 0 && len(cfg.TopicMappings) == 0) {
		return
	}

	chat, err := l.client.GetChat(ctx, l.chatID)
	if err != nil {
		l.log.Warnw("could not verify topic support on the chat",
			"chat", l.chatID,
			"error", err)
		return
	}

	if !chat.IsForum {
		l.log.Warnw("routing names topics but the chat is not a forum, routed documents will fall back to the chat itself",
			"chat", l.chatID)
	}
}

func (l *Listener) handleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID != l.chatID {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	reply := l.Execute(ctx, text)
	if reply == "" {
		return
	}

	if err := l.client.SendMessage(ctx, l.chatID, msg.MessageThreadID, reply); err != nil {
		l.log.Errorw("could not answer command",
			"command", text,
			"error", err)
	}
}

// Execute runs one command line and returns the reply text.
func (l *Listener) Execute(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	// commands may arrive as /cmd@botname in group chats
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch cmd {
	case "/allow":
		return l.cmdAllow(args)
	case "/deny":
		return l.cmdDeny(args)
	case "/allowlist":
		return l.cmdAllowlist()
	case "/route":
		return l.cmdRoute(args)
	case "/unroute":
		return l.cmdUnroute(args)
	case "/default":
		return l.cmdDefault(args)
	case "/routes":
		return l.cmdRoutes()
	case "/check":
		return l.cmdCheck(ctx)
	case "/status":
		return l.cmdStatus()
	case "/help", "/start":
		return helpText
	}

	return "unknown command, try /help"
}

const helpText = `commands:
/allow <address|*@domain> - accept a sender
/deny <address|*@domain> - remove an allow-list entry
/allowlist - show the allow-list
/route <address|*@domain> <topic-id> - send a sender's documents to a topic
/unroute <address|*@domain> - remove a routing rule
/default <topic-id|off> - set or clear the fallback topic
/routes - show the routing table
/check - sweep the mailbox now
/status - watcher state and counters`

func (l *Listener) cmdAllow(args []string) string {
	if len(args) != 1 {
		return "usage: /allow <address|*@domain>"
	}

	if err := l.allow.Add(args[0]); err != nil {
		return fmt.Sprintf("cannot add %s: %v", args[0], err)
	}

	return fmt.Sprintf("added %s to the allow-list", args[0])
}

func (l *Listener) cmdDeny(args []string) string {
	if len(args) != 1 {
		return "usage: /deny <address|*@domain>"
	}

	removed, err := l.allow.Remove(args[0])
	if err != nil {
		return fmt.Sprintf("cannot remove %s: %v", args[0], err)
	}
	if !removed {
		return fmt.Sprintf("%s is not on the allow-list", args[0])
	}

	return fmt.Sprintf("removed %s from the allow-list", args[0])
}

func (l *Listener) cmdAllowlist() string {
	entries, err := l.allow.Entries()
	if err != nil {
		return fmt.Sprintf("cannot read the allow-list: %v", err)
	}

	if len(entries) == 0 {
		return "allow-list is empty, every sender is accepted"
	}

	sorted := append([]string(nil), entries...)
	sort.Strings(sorted)

	return "allowed senders:\n" + strings.Join(sorted, "\n")
}

func (l *Listener) cmdRoute(args []string) string {
	if len(args) != 2 {
		return "usage: /route <address|*@domain> <topic-id>"
	}

	topic, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Sprintf("%s is not a topic id", args[1])
	}

	if err := l.routes.SetMapping(args[0], topic); err != nil {
		return fmt.Sprintf("cannot route %s: %v", args[0], err)
	}

	return fmt.Sprintf("documents from %s now go to topic %d", args[0], topic)
}

func (l *Listener) cmdUnroute(args []string) string {
	if len(args) != 1 {
		return "usage: /unroute <address|*@domain>"
	}

	removed, err := l.routes.RemoveMapping(args[0])
	if err != nil {
		return fmt.Sprintf("cannot unroute %s: %v", args[0], err)
	}
	if !removed {
		return fmt.Sprintf("no routing rule for %s", args[0])
	}

	return fmt.Sprintf("removed the routing rule for %s", args[0])
}

func (l *Listener) cmdDefault(args []string) string {
	if len(args) != 1 {
		return "usage: /default <topic-id|off>"
	}

	if strings.EqualFold(args[0], "off") {
		if err := l.routes.SetDefault(0); err != nil {
			return fmt.Sprintf("cannot clear the default topic: %v", err)
		}
		return "default topic cleared, unrouted documents go to the chat itself"
	}

	topic, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("%s is not a topic id", args[0])
	}

	if err := l.routes.SetDefault(topic); err != nil {
		return fmt.Sprintf("cannot set the default topic: %v", err)
	}

	return fmt.Sprintf("default topic is now %d", topic)
}

func (l *Listener) cmdRoutes() string {
	cfg, err := l.routes.Load()
	if err != nil {
		return fmt.Sprintf("cannot read the routing table: %v", err)
	}

	var b strings.Builder
	if cfg.DefaultTopic > 0 {
		fmt.Fprintf(&b, "default: topic %d\n", cfg.DefaultTopic)
	} else {
		b.WriteString("default: the chat itself\n")
	}

	if len(cfg.TopicMappings) == 0 {
		b.WriteString("no sender rules")
		return b.String()
	}

	patterns := make([]string, 0, len(cfg.TopicMappings))
	for p := range cfg.TopicMappings {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, p := range patterns {
		fmt.Fprintf(&b, "%s -> topic %d\n", p, cfg.TopicMappings[p])
	}

	return strings.TrimRight(b.String(), "\n")
}

func (l *Listener) cmdCheck(ctx context.Context) string {
	result, err := l.pipeline.RunCycle(ctx)
	if err != nil {
		return fmt.Sprintf("check failed: %v", err)
	}

	return fmt.Sprintf("checked the mailbox: %d fetched, %d delivered (%d degraded), %d skipped, %d failed",
		result.Fetched, result.Delivered, result.Degraded, result.Skipped, result.Failures)
}

func (l *Listener) cmdStatus() string {
	stats := l.pipeline.Snapshot()

	last := "never"
	if !stats.LastCycle.IsZero() {
		last = stats.LastCycle.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf("watcher: %s\ncycles: %d, delivered: %d (%d degraded), skipped: %d, failures: %d\nlast cycle: %s",
		l.watcherState(), stats.Cycles, stats.Delivered, stats.Degraded, stats.Skipped, stats.Failures, last)
}
