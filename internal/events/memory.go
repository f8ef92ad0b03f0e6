package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// MemoryBus delivers events inside one process. A subscriber that falls
// behind loses events rather than blocking the publisher.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[*memorySub]struct{}{}}
}

type memorySub struct {
	bus  *MemoryBus
	key  string
	ch   chan Event
	once sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.key], s)
		if len(s.bus.subs[s.key]) == 0 {
			delete(s.bus.subs, s.key)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[channel(e.SessionID)] {
		select {
		case s.ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	s := &memorySub{bus: b, key: channel(sessionID), ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	if b.subs[s.key] == nil {
		b.subs[s.key] = map[*memorySub]struct{}{}
	}
	b.subs[s.key][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}
