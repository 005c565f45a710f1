package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/linanwx/triptych/logger"
)

// MaxSessions is the number of panel slots. Slots are numbered from 1.
const MaxSessions = 3

// ErrSlotOutOfRange is returned for slots outside 1..MaxSessions.
var ErrSlotOutOfRange = fmt.Errorf("slot must be between 1 and %d", MaxSessions)

// Manager owns the panel slots.
type Manager struct {
	mu    sync.RWMutex
	slots [MaxSessions]*Session
}

// NewManager creates a manager with every slot empty.
func NewManager() *Manager {
	return &Manager{}
}

func index(slot int) (int, error) {
	if slot < 1 || slot > MaxSessions {
		return 0, fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	return slot - 1, nil
}

// Configure installs a new session in slot. Any previous session in that slot
// is discarded together with its log. A slot with a turn in flight cannot
// be reconfigured.
func (m *Manager) Configure(slot int, cfg Config) (*Session, error) {
	i, err := index(slot)
	if err != nil {
		return nil, err
	}
	s, err := New(slot, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.slots[i]; prev != nil && prev.InFlight() {
		return nil, ErrBusy
	}
	m.slots[i] = s

	logger.Info("panel configured", "slot", slot, "session", s.ID(), "provider", cfg.Provider, "model", cfg.Model)
	return s, nil
}

// Remove empties slot.
func (m *Manager) Remove(slot int) error {
	i, err := index(slot)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.slots[i]; prev != nil && prev.InFlight() {
		return ErrBusy
	}
	m.slots[i] = nil
	return nil
}

// Get returns the session in slot.
func (m *Manager) Get(slot int) (*Session, bool) {
	i, err := index(slot)
	if err != nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.slots[i]
	return s, s != nil
}

// Active returns the configured sessions in slot order.
func (m *Manager) Active() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, MaxSessions)
	for _, s := range m.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Snapshots returns a snapshot of every configured session in slot order.
func (m *Manager) Snapshots() []Snapshot {
	active := m.Active()
	out := make([]Snapshot, len(active))
	for i, s := range active {
		out[i] = s.Snapshot()
	}
	return out
}

// InFlight reports whether any session has a turn in flight.
func (m *Manager) InFlight() bool {
	for _, s := range m.Active() {
		if s.InFlight() {
			return true
		}
	}
	return false
}

// ResetLogs clears every session's log. It fails without clearing anything
// if a turn is in flight.
func (m *Manager) ResetLogs() error {
	if m.InFlight() {
		return ErrBusy
	}
	var errs []error
	for _, s := range m.Active() {
		if err := s.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", s.Slot(), err))
		}
	}
	return errors.Join(errs...)
}
