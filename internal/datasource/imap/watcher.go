package imap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/okibe/mailgram/internal/logger"
)

const (
	maxReconnectAttempts = 10
	defaultReconnectWait = 10 * time.Second
)

// ErrWatcherFailed is returned once the reconnect budget is spent. The
// watcher is done at that point; only a restart brings it back.
var ErrWatcherFailed = errors.New("mailbox watcher gave up reconnecting")

// State of the watcher's connection loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

// idleSession is one live connection parked in IDLE on a mailbox.
type idleSession interface {
	SelectMailbox(name string) error
	// Idle blocks until stop is closed or the connection ends, putting
	// a signal on updates whenever the mailbox reports new messages. A
	// nil return means the stream ended cleanly.
	Idle(stop <-chan struct{}, updates chan<- struct{}) error
	Close() error
}

type dialSessionFunc func(addr, username, password string) (idleSession, error)

// Watcher holds one IMAP connection in IDLE and signals mail arrivals.
// Connections that drop are re-established up to maxReconnectAttempts
// times with a fixed wait in between; a successful connect resets the
// budget.
type Watcher struct {
	addr     string
	username string
	password string
	mailbox  string

	// reconnect after the server ends the stream cleanly
	reconnectOnEnd bool

	dial          dialSessionFunc
	reconnectWait time.Duration

	state      int32
	reconnects int32
	mail       chan struct{}
	log        logger.Logger
}

func NewWatcher(addr, username, password, mailbox string, reconnectOnEnd bool) *Watcher {
	return &Watcher{
		addr:           addr,
		username:       username,
		password:       password,
		mailbox:        mailbox,
		reconnectOnEnd: reconnectOnEnd,
		dial:           dialSession,
		reconnectWait:  defaultReconnectWait,
		mail:           make(chan struct{}, 1),
		log:            logger.GetLogger(),
	}
}

// Mail fires when the mailbox reports new messages. Signals are
// coalesced, one signal can stand for several messages, so consumers
// must sweep the mailbox rather than count.
func (w *Watcher) Mail() <-chan struct{} {
	return w.mail
}

func (w *Watcher) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// Reconnects counts how often the watcher has had to redial after its
// initial connection attempt.
func (w *Watcher) Reconnects() int {
	return int(atomic.LoadInt32(&w.reconnects))
}

func (w *Watcher) setState(s State) {
	atomic.StoreInt32(&w.state, int32(s))
}

// Run drives the connect/idle/reconnect loop. It returns nil when the
// context ends or the server closes the stream cleanly (unless
// reconnect-on-end is set), and ErrWatcherFailed once the reconnect
// budget is spent.
func (w *Watcher) Run(ctx context.Context) error {
	attempts := 0

	for reconnecting := false; ; reconnecting = true {
		if reconnecting {
			atomic.AddInt32(&w.reconnects, 1)
		}
		w.setState(StateConnecting)

		session, err := w.connect()
		if err != nil {
			attempts++
			w.log.Errorw("mailbox connection failed",
				"attempt", attempts,
				"max", maxReconnectAttempts,
				"error", err)

			if attempts >= maxReconnectAttempts {
				w.setState(StateFailed)
				return fmt.Errorf("%w: %d attempts, last error: %v", ErrWatcherFailed, attempts, err)
			}

			w.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.reconnectWait):
			}
			continue
		}

		attempts = 0
		w.setState(StateReady)
		w.log.Infow("mailbox watcher connected",
			"mailbox", w.mailbox)

		// messages may have arrived while we were away
		w.signalMail()

		idleErr := w.idle(ctx, session)
		_ = session.Close()
		w.setState(StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}

		if idleErr == nil {
			if !w.reconnectOnEnd {
				w.log.Infow("mailbox stream ended, watcher stopping")
				return nil
			}
			w.log.Infow("mailbox stream ended, reconnecting")
			continue
		}

		w.log.Warnw("mailbox connection dropped",
			"error", idleErr)

		// a drop spends an attempt and sits out the wait like a failed
		// connect; only the next successful connect resets the budget
		attempts++
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.reconnectWait):
		}
	}
}

func (w *Watcher) connect() (idleSession, error) {
	session, err := w.dial(w.addr, w.username, w.password)
	if err != nil {
		return nil, err
	}

	if err := session.SelectMailbox(w.mailbox); err != nil {
		_ = session.Close()
		return nil, err
	}

	return session, nil
}

func (w *Watcher) idle(ctx context.Context, session idleSession) error {
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- session.Idle(stop, w.mail)
	}()

	select {
	case <-ctx.Done():
		close(stop)
		return <-done
	case err := <-done:
		return err
	}
}

func (w *Watcher) signalMail() {
	select {
	case w.mail <- struct{}{}:
	default:
	}
}

func dialSession(addr, username, password string) (idleSession, error) {
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := c.Login(username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login %s: %w", username, err)
	}

	return &imapSession{client: c, quit: make(chan struct{})}, nil
}

type imapSession struct {
	client *client.Client

	// closed by Close once the logout is through, releasing the drainer
	quit chan struct{}
}

func (s *imapSession) SelectMailbox(name string) error {
	_, err := s.client.Select(name, false)
	return err
}

func (s *imapSession) Idle(stop <-chan struct{}, updates chan<- struct{}) error {
	raw := make(chan client.Update, 16)
	s.client.Updates = raw

	done := make(chan error, 1)
	go func() {
		done <- s.client.Idle(stop, nil)
	}()

	for {
		select {
		case update := <-raw:
			if _, ok := update.(*client.MailboxUpdate); ok {
				select {
				case updates <- struct{}{}:
				default:
				}
			}
		case err := <-done:
			// the server keeps pushing unilateral updates until the
			// logout is through; go-imap's reader blocks once nobody
			// takes them, which would wedge Close
			go s.drainUpdates(raw)
			return err
		}
	}
}

func (s *imapSession) drainUpdates(raw <-chan client.Update) {
	for {
		select {
		case <-raw:
		case <-s.quit:
			return
		}
	}
}

func (s *imapSession) Close() error {
	err := s.client.Logout()
	close(s.quit)
	return err
}
