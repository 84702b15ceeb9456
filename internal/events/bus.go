package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBuffer = 256

// Subscription receives events on C in the order they were emitted.
// Events are dropped for this subscriber while its buffer is full.
type Subscription struct {
	C <-chan Event

	id     uint64
	ch     chan Event
	topics map[string]struct{}
	bus    *Bus
	once   sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s.id) })
}

func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Bus is an in-process, goroutine-safe fan-out of events to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
	closed  atomic.Bool
	logger  *slog.Logger
	now     func() time.Time
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Emit implements Emitter.
func (b *Bus) Emit(topic string, payload any) {
	if b.closed.Load() {
		return
	}
	ev := Event{Topic: topic, Payload: payload, At: b.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(topic) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			if b.dropped.Add(1)%100 == 1 {
				b.logger.Warn("event subscriber too slow, dropping", "topic", topic, "subscriber", s.id)
			}
		}
	}
}

// Subscribe registers a subscriber for the given topics, or all topics when
// none are given. buffer <= 0 selects a default.
func (b *Bus) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{
		C:      ch,
		id:     b.nextID.Add(1),
		ch:     ch,
		topics: make(map[string]struct{}, len(topics)),
		bus:    b,
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		close(ch)
		return s
	}
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}

// Dropped returns the number of events dropped because of full buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close stops delivery and closes every subscription. It is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
