// Package bus carries session snapshots and turn lifecycle events from the
// dispatcher to UIs.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/linanwx/triptych/logger"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event *Event)

// Subscription represents a subscription to events.
type Subscription struct {
	ID        string
	EventType EventType // empty matches every type
	Handler   Handler
	seq       int64
}

// Bus delivers events to subscribers on a single goroutine, so every
// subscriber sees events in publication order. Handlers must not block for
// long and must not publish.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	subCounter    int64

	eventChan chan *Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBus creates a new event bus.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	b := &Bus{
		subscriptions: make(map[string]*Subscription),
		eventChan:     make(chan *Event, bufferSize),
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.processEvents()

	return b
}

// Subscribe registers a handler for eventType, or for all events when
// eventType is empty.
func (b *Bus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subCounter++
	id := fmt.Sprintf("sub-%d", b.subCounter)

	b.subscriptions[id] = &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		seq:       b.subCounter,
	}

	logger.Debug("subscription added", "id", id, "eventType", eventType)
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// Publish queues an event. It blocks while the buffer is full; terminal
// events must not be lost. Events published after Close are dropped.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	select {
	case <-b.done:
		logger.Warn("bus closed, event dropped", "type", event.Type)
		return
	default:
	}
	select {
	case b.eventChan <- event:
	case <-b.done:
		logger.Warn("bus closed, event dropped", "type", event.Type)
	}
}

// Emit builds and publishes an event.
func (b *Bus) Emit(eventType EventType, source string, data any) {
	event, err := NewEvent(eventType, source, data)
	if err != nil {
		logger.Error("event encode failed", "type", eventType, "err", err)
		return
	}
	b.Publish(event)
}

// Flush blocks until every event published before the call has been
// delivered to the subscribers.
func (b *Bus) Flush() {
	ack := make(chan struct{})
	b.Publish(&Event{ack: ack})
	select {
	case <-ack:
	case <-b.done:
	}
}

// Close drains queued events and stops the bus.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.eventChan:
			b.dispatch(event)
		case <-b.done:
			for {
				select {
				case event := <-b.eventChan:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

// dispatch runs matching handlers in subscription order.
func (b *Bus) dispatch(event *Event) {
	if event.ack != nil {
		close(event.ack)
		return
	}
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.EventType == "" || sub.EventType == event.Type {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	ctx := context.Background()
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic", "subscription", sub.ID, "panic", r)
				}
			}()
			sub.Handler(ctx, event)
		}()
	}
}
