package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	inboxSize      = 32
	subscriberSize = 64
)

var ErrSessionClosed = errors.New("assistant session closed")

// Message is one entry of the chat log.
type Message struct {
	Seq  int       `json:"seq"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type SessionOptions struct {
	Timing Timing
	Logger *zap.Logger
	// OnBranch is called once per processed user message.
	OnBranch func(Branch)
}

type inboxItem struct {
	text      string
	processed chan struct{}
}

// Session runs one conversation. A single goroutine consumes the inbox and
// emits messages, so the chat log keeps its order no matter how fast replies
// arrive.
type Session struct {
	script   Script
	timing   Timing
	logger   *zap.Logger
	onBranch func(Branch)

	inbox     chan inboxItem
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	conv       Conversation
	transcript []Message
	visible    bool
	closed     bool
	subs       map[int]chan Message
	nextSub    int
}

// NewSession starts the sequencer; the first prompt is emitted right away.
func NewSession(script Script, opts SessionOptions) (*Session, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		script:   script,
		timing:   opts.Timing,
		logger:   logger,
		onBranch: opts.OnBranch,
		inbox:    make(chan inboxItem, inboxSize),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Message),
	}
	go s.run()
	return s, nil
}

func (s *Session) run() {
	for _, e := range s.script.Start() {
		if !s.emit(e) {
			return
		}
	}
	for {
		select {
		case <-s.done:
			return
		case item := <-s.inbox:
			s.handle(item)
		}
	}
}

func (s *Session) handle(item inboxItem) {
	defer close(item.processed)

	s.mu.Lock()
	next, out, err := s.script.Reply(s.conv, item.text)
	if err == nil {
		s.conv = next
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("assistant reply rejected", zap.Error(err))
		return
	}
	if s.onBranch != nil {
		s.onBranch(out.Branch)
	}
	for _, e := range out.Emissions {
		if !s.emit(e) {
			return
		}
	}
}

// emit waits out the pause and appends the message. It returns false once
// the session is closed.
func (s *Session) emit(e Emission) bool {
	if d := s.timing.of(e.Pause); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-s.done:
			timer.Stop()
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	msg := Message{
		Seq:  len(s.transcript) + 1,
		Role: e.Role,
		Text: e.Text,
		At:   time.Now(),
	}
	s.transcript = append(s.transcript, msg)
	for id, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			s.logger.Warn("assistant subscriber too slow, dropping message",
				zap.Int("subscriber", id),
				zap.Int("seq", msg.Seq),
			)
		}
	}
	return true
}

// Send queues a user reply. The returned channel is closed once every
// message of the exchange has been emitted.
func (s *Session) Send(ctx context.Context, text string) (<-chan struct{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	item := inboxItem{text: text, processed: make(chan struct{})}
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- item:
		return item.processed, nil
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendAndWait is Send followed by waiting for the exchange to finish.
func (s *Session) SendAndWait(ctx context.Context, text string) error {
	processed, err := s.Send(ctx, text)
	if err != nil {
		return err
	}
	select {
	case <-processed:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the log so far and a channel carrying every later
// message. The channel is closed by cancel or when the session closes.
func (s *Session) Subscribe() ([]Message, <-chan Message, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Message, subscriberSize)
	backlog := append([]Message(nil), s.transcript...)
	if s.closed {
		close(ch)
		return backlog, ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return backlog, ch, cancel
}

func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

func (s *Session) State() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// ToggleVisibility shows or hides the chat panel. Conversation state is
// untouched.
func (s *Session) ToggleVisibility() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = !s.visible
	return s.visible
}

func (s *Session) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the sequencer, dropping pending emissions.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
	})
}
