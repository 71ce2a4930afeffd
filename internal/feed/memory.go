package feed

import (
	"context"
	"sync"
)

// MemoryBus is the in-process bus used when Redis is not configured.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan Event]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[topic] {
		offer(ch, ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) (*Listener, error) {
	ch := make(chan Event, listenerBuffer)

	b.mu.Lock()
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[chan Event]struct{})
		}
		b.subs[t][ch] = struct{}{}
	}
	b.mu.Unlock()

	return &Listener{C: ch, closeFn: func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range topics {
			delete(b.subs[t], ch)
			if len(b.subs[t]) == 0 {
				delete(b.subs, t)
			}
		}
		close(ch)
		return nil
	}}, nil
}
