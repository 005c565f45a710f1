// Package channel connects user-facing surfaces (terminal, websocket) to the
// dispatcher and the event bus.
package channel

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/dispatch"
	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/session"
)

// Deps is what every channel needs to submit turns and render panels.
type Deps struct {
	Sessions   *session.Manager
	Dispatcher *dispatch.Dispatcher
	Bus        *bus.Bus
	ExportDir  string // where /export writes transcripts
}

// Channel is a user-facing surface.
type Channel interface {
	// Name returns the channel name (e.g., "tui", "web").
	Name() string

	// Start begins serving. It must not block.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Done is closed when the channel ends on its own (e.g. the user quit).
	Done() <-chan struct{}
}

// Manager manages multiple channels as a pure registry.
type Manager struct {
	channels map[string]Channel
}

// NewManager creates a new channel manager.
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the manager and logs it. Nil is silently ignored.
func (m *Manager) Register(ch Channel) {
	if ch == nil {
		return
	}
	m.channels[ch.Name()] = ch
	logger.Info("channel registered", "channel", ch.Name())
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts all registered channels. The terminal UI starts last so
// the other channels' startup logs reach stderr before it takes the screen.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, name := range m.names() {
		if err := m.channels[name].Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all registered channels.
func (m *Manager) StopAll() error {
	var errs []error
	names := m.names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.channels[names[i]].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Each iterates over all registered channels.
func (m *Manager) Each(fn func(Channel)) {
	for _, name := range m.names() {
		fn(m.channels[name])
	}
}

// Done returns a channel closed as soon as any registered channel finishes.
func (m *Manager) Done() <-chan struct{} {
	out := make(chan struct{})
	if len(m.channels) == 0 {
		return out
	}
	var once sync.Once
	for _, ch := range m.channels {
		go func(done <-chan struct{}) {
			<-done
			once.Do(func() { close(out) })
		}(ch.Done())
	}
	return out
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == tuiChannelName) != (names[j] == tuiChannelName) {
			return names[j] == tuiChannelName
		}
		return names[i] < names[j]
	})
	return names
}
