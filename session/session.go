// Package session holds per-panel conversation state. Each session owns an
// append-only log that is published as an immutable snapshot after every
// change; readers never observe a log being mutated in place.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/linanwx/triptych/provider"
)

var (
	// ErrBusy is returned when a session already has a turn in flight.
	ErrBusy = errors.New("session has a turn in flight")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid session config")
)

// Config is what a panel needs before it can take part in a turn.
type Config struct {
	Provider   provider.Kind
	APIKey     string
	APIBase    string
	Model      string
	Generation provider.GenerationConfig
}

// Validate checks the config without touching the network.
func (c Config) Validate() error {
	if _, ok := provider.Lookup(c.Provider); !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Target returns the transport target for this config.
func (c Config) Target() provider.Target {
	return provider.Target{APIKey: c.APIKey, APIBase: c.APIBase, Model: c.Model}
}

// Snapshot is an immutable view of a session. Messages must not be modified.
type Snapshot struct {
	SessionID string             `json:"sessionId"`
	Slot      int                `json:"slot"`
	Provider  provider.Kind      `json:"provider"`
	Model     string             `json:"model"`
	State     State              `json:"state"`
	Messages  []provider.Message `json:"messages"`
}

// Session is one configured panel.
type Session struct {
	id   string
	slot int

	mu  sync.Mutex // guards cfg
	cfg Config

	state atomic.Int32
	log   atomic.Pointer[[]provider.Message]
}

// New creates an idle session with an empty log.
func New(slot int, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:   uuid.NewString(),
		slot: slot,
		cfg:  cfg,
	}
	empty := []provider.Message{}
	s.log.Store(&empty)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Slot() int { return s.slot }

// Config returns a copy of the current configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// InFlight reports whether a turn is requesting or streaming.
func (s *Session) InFlight() bool { return s.State().active() }

// Messages returns the current log. The slice is shared and must not be
// modified; later changes publish a new slice instead.
func (s *Session) Messages() []provider.Message { return *s.log.Load() }

// Snapshot returns the current log together with session metadata.
func (s *Session) Snapshot() Snapshot { return s.snapshot(s.State()) }

func (s *Session) snapshot(state State) Snapshot {
	cfg := s.Config()
	return Snapshot{
		SessionID: s.id,
		Slot:      s.slot,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		State:     state,
		Messages:  s.Messages(),
	}
}

// UpdateGeneration replaces the generation parameters between turns.
func (s *Session) UpdateGeneration(g provider.GenerationConfig) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if s.InFlight() {
		return ErrBusy
	}
	s.mu.Lock()
	s.cfg.Generation = g
	s.mu.Unlock()
	return nil
}

// Reset clears the log between turns.
func (s *Session) Reset() error {
	// Holding the requesting state keeps BeginTurn out while the log is swapped.
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRequesting)) {
		return ErrBusy
	}
	empty := []provider.Message{}
	s.log.Store(&empty)
	s.state.Store(int32(StateIdle))
	return nil
}

// BeginTurn appends the user message and moves the session to requesting.
// Only one turn may be in flight per session.
func (s *Session) BeginTurn(user provider.Message) (*Turn, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRequesting)) {
		return nil, ErrBusy
	}
	s.appendMessage(user)
	return &Turn{s: s, first: true}, nil
}

// The log has exactly one writer at a time (the owning turn), so
// load-copy-store is race free; copying keeps published snapshots immutable.

func (s *Session) appendMessage(m provider.Message) {
	cur := s.Messages()
	next := make([]provider.Message, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = m
	s.log.Store(&next)
}

func (s *Session) replaceLast(m provider.Message) {
	cur := s.Messages()
	if len(cur) == 0 {
		s.appendMessage(m)
		return
	}
	next := make([]provider.Message, len(cur))
	copy(next, cur)
	next[len(cur)-1] = m
	s.log.Store(&next)
}

// Turn is one session's share of a user turn. It is owned by a single
// goroutine.
type Turn struct {
	s         *Session
	acc       strings.Builder
	first     bool // next fragment opens the assistant message
	fragments int
	settled   bool
}

// Session returns the session the turn belongs to.
func (t *Turn) Session() *Session { return t.s }

// Fragments returns how many fragments have been merged.
func (t *Turn) Fragments() int { return t.fragments }

// Text returns the accumulated reply.
func (t *Turn) Text() string { return t.acc.String() }

// Streaming marks the response stream as open.
func (t *Turn) Streaming() Snapshot {
	if !t.settled {
		t.s.state.Store(int32(StateStreaming))
	}
	return t.s.Snapshot()
}

// Merge adds one fragment to the reply. The first fragment of the turn
// appends an assistant message; every later one replaces it with the
// longer accumulated text.
func (t *Turn) Merge(fragment string) Snapshot {
	if t.settled || fragment == "" {
		return t.s.Snapshot()
	}
	t.acc.WriteString(fragment)
	t.fragments++

	msg := provider.AssistantMessage(t.acc.String())
	if t.first {
		t.s.appendMessage(msg)
		t.first = false
	} else {
		t.s.replaceLast(msg)
	}
	return t.s.Snapshot()
}

// Fail appends one error message and settles the turn. A partial reply
// already merged is kept.
func (t *Turn) Fail(err error) Snapshot {
	if t.settled {
		return t.s.Snapshot()
	}
	t.s.appendMessage(provider.AssistantMessage(ErrorContent(err)))
	return t.settle(StateFailed)
}

// Complete settles the turn successfully.
func (t *Turn) Complete() Snapshot {
	if t.settled {
		return t.s.Snapshot()
	}
	return t.settle(StateCompleted)
}

// settle publishes the terminal state and returns the session to idle.
func (t *Turn) settle(final State) Snapshot {
	t.settled = true
	t.s.state.Store(int32(final))
	snap := t.s.snapshot(final)
	t.s.state.Store(int32(StateIdle))
	return snap
}

const errorPrefix = "Error: "

// ErrorContent is the text of the assistant message recorded for a failed
// turn.
func ErrorContent(err error) string {
	if err == nil {
		return errorPrefix + "unknown error"
	}
	return errorPrefix + err.Error()
}

// IsErrorContent reports whether an assistant message records a failure.
func IsErrorContent(content string) bool {
	return strings.HasPrefix(content, errorPrefix)
}
