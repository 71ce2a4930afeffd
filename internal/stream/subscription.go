// Package stream holds the cancellable live-sequence abstraction shared by
// every feed in the service.
package stream

import (
	"context"
	"sync"
)

// Subscription delivers values from a producer goroutine to one consumer.
type Subscription[T any] struct {
	ch     chan T
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Emit hands a value to the consumer. It blocks until the value is taken
// and returns false once the subscription is cancelled.
type Emit[T any] func(T) bool

// Start runs fn on its own goroutine. fn must return when ctx is done.
func Start[T any](parent context.Context, fn func(ctx context.Context, emit Emit[T]) error) *Subscription[T] {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription[T]{
		ch:     make(chan T),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(v T) bool {
		select {
		case s.ch <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.done)
		defer close(s.ch)
		err := fn(ctx, emit)
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// C yields values until the producer exits. It is closed afterwards.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel stops the producer and waits for it. No value is delivered after
// Cancel returns.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Err reports why the producer stopped. It is nil after a plain Cancel.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
