// Package dispatch fans one user turn out to every configured panel and
// merges each panel's stream back into its own log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
	"github.com/linanwx/triptych/stream"
)

const eventSource = "dispatch"

var (
	// ErrNoSessions is returned when no panel is configured.
	ErrNoSessions = errors.New("no panels configured")
	// ErrEmptyTurn is returned for blank user input.
	ErrEmptyTurn = errors.New("message is empty")
	// ErrTurnInFlight is returned while a previous turn has not settled.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// SessionResult is how one session settled.
type SessionResult struct {
	SessionID string
	Slot      int
	Provider  provider.Kind
	Model     string
	State     session.State
	Fragments int
	Reply     string
	Err       error
	Latency   time.Duration
}

// TurnReport summarizes a settled turn. Results are in slot order.
type TurnReport struct {
	TurnID  string
	Text    string
	Results []SessionResult
}

// Failed returns how many sessions failed.
func (r *TurnReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher runs turns. It allows one turn in flight at a time.
type Dispatcher struct {
	sessions *session.Manager
	client   *provider.Client
	events   *bus.Bus // may be nil

	inFlight atomic.Bool
}

// New creates a dispatcher. events may be nil when nobody renders snapshots.
func New(sessions *session.Manager, client *provider.Client, events *bus.Bus) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		client:   client,
		events:   events,
	}
}

// InFlight reports whether a turn is running. UIs use it to block input.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// SendTurn appends text as a user message to every configured session, then
// streams all sessions concurrently and blocks until each has settled.
//
// Configuration errors are returned before any state changes. Per-session
// failures never fail the turn; they are recorded in the session's log and
// in the report.
func (d *Dispatcher) SendTurn(ctx context.Context, text string) (*TurnReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTurn
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer d.inFlight.Store(false)

	active := d.sessions.Active()
	if len(active) == 0 {
		return nil, ErrNoSessions
	}
	for _, s := range active {
		if s.InFlight() {
			return nil, ErrTurnInFlight
		}
	}

	report := &TurnReport{
		TurnID:  uuid.NewString(),
		Text:    text,
		Results: make([]SessionResult, len(active)),
	}

	// Every log gets the user message before any request starts.
	user := provider.UserMessage(text)
	turns := make([]*session.Turn, len(active))
	slots := make([]int, 0, len(active))
	for i, s := range active {
		cfg := s.Config()
		report.Results[i] = SessionResult{
			SessionID: s.ID(),
			Slot:      s.Slot(),
			Provider:  cfg.Provider,
			Model:     cfg.Model,
		}
		turn, err := s.BeginTurn(user)
		if err != nil {
			report.Results[i].State = session.StateFailed
			report.Results[i].Err = err
			logger.Warn("session skipped for turn", "slot", s.Slot(), "session", s.ID(), "err", err)
			continue
		}
		turns[i] = turn
		slots = append(slots, s.Slot())
		d.emit(bus.EventSessionSnapshot, s.Snapshot())
	}

	logger.Info("turn started", "turn", report.TurnID, "sessions", len(slots))
	d.emit(bus.EventTurnStarted, bus.TurnStartedData{
		TurnID:   report.TurnID,
		Text:     text,
		Sessions: slots,
	})

	var wg sync.WaitGroup
	for i, turn := range turns {
		if turn == nil {
			continue
		}
		wg.Add(1)
		go func(i int, turn *session.Turn) {
			defer wg.Done()
			d.run(ctx, report.TurnID, turn, &report.Results[i])
		}(i, turn)
	}
	wg.Wait()

	failed := report.Failed()
	logger.Info("turn completed", "turn", report.TurnID, "failed", failed, "succeeded", len(active)-failed)
	d.emit(bus.EventTurnCompleted, bus.TurnCompletedData{
		TurnID:    report.TurnID,
		Failed:    failed,
		Succeeded: len(active) - failed,
	})
	return report, nil
}

// run drives one session's turn to a terminal state and fills res.
func (d *Dispatcher) run(ctx context.Context, turnID string, turn *session.Turn, res *SessionResult) {
	s := turn.Session()
	cfg := s.Config()
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
			logger.Error("session panic", "slot", s.Slot(), "session", s.ID(), "panic", r)
		}
		var snap session.Snapshot
		if err != nil {
			snap = turn.Fail(err)
		} else {
			snap = turn.Complete()
		}
		res.State = snap.State
		res.Fragments = turn.Fragments()
		res.Reply = turn.Text()
		res.Err = err
		res.Latency = time.Since(start)

		d.emit(bus.EventSessionSnapshot, snap)
		settled := bus.SessionSettledData{
			TurnID:    turnID,
			SessionID: s.ID(),
			Slot:      s.Slot(),
			State:     snap.State.String(),
			Fragments: res.Fragments,
			LatencyMs: res.Latency.Milliseconds(),
		}
		if err != nil {
			settled.Error = err.Error()
		}
		d.emit(bus.EventSessionSettled, settled)
	}()

	err = d.stream(ctx, turn, cfg)
	if err != nil {
		logger.Warn(
			"session failed",
			"slot", s.Slot(),
			"provider", cfg.Provider,
			"model", cfg.Model,
			"fragments", turn.Fragments(),
			"latencyMs", time.Since(start).Milliseconds(),
			"err", err,
		)
		return
	}
	logger.Info(
		"session completed",
		"slot", s.Slot(),
		"provider", cfg.Provider,
		"model", cfg.Model,
		"fragments", turn.Fragments(),
		"chars", len(turn.Text()),
		"latencyMs", time.Since(start).Milliseconds(),
	)
}

func (d *Dispatcher) stream(ctx context.Context, turn *session.Turn, cfg session.Config) error {
	s := turn.Session()
	adapter, err := provider.NewAdapter(cfg.Provider)
	if err != nil {
		return err
	}

	messages := s.Messages()
	logger.Info(
		"session request",
		"slot", s.Slot(),
		"provider", cfg.Provider,
		"model", cfg.Model,
		"messages", len(messages),
		"promptTokens", session.EstimateTokens(messages, cfg.Generation.SystemPrompt),
	)

	body, err := d.client.Open(ctx, adapter, cfg.Target(), messages, cfg.Generation)
	if err != nil {
		return err
	}
	defer body.Close()

	d.emit(bus.EventSessionSnapshot, turn.Streaming())

	for fragment, err := range stream.Decode(ctx, body, adapter) {
		if err != nil {
			return err
		}
		d.emit(bus.EventSessionSnapshot, turn.Merge(fragment))
	}
	return nil
}

func (d *Dispatcher) emit(eventType bus.EventType, data any) {
	if d.events == nil {
		return
	}
	d.events.Emit(eventType, eventSource, data)
}
