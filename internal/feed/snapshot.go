package feed

import (
	"context"

	"campus-care-api/internal/model"
	"campus-care-api/internal/stream"
)

// Snapshot emits load's result once and again after every event of the
// given kind on topics. The bus subscription is in place before the first
// load, so no change between the two is lost. Queued events collapse into
// one reload.
func Snapshot[T any](parent context.Context, bus Bus, topics []string, kind string, load func(context.Context) (T, error)) (*stream.Subscription[T], error) {
	l, err := bus.Subscribe(parent, topics...)
	if err != nil {
		return nil, model.Transient("subscribe feed", err)
	}

	return stream.Start(parent, func(ctx context.Context, emit stream.Emit[T]) error {
		defer l.Close()
		for {
			v, err := load(ctx)
			if err != nil {
				return err
			}
			if !emit(v) {
				return nil
			}
			if !Wait(ctx, l, kind) {
				return nil
			}
		}
	}), nil
}

// Wait blocks until the next event of kind and swallows any already queued
// behind it. Other kinds are skipped. It returns false when ctx ends or the
// listener closes.
func Wait(ctx context.Context, l *Listener, kind string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-l.C:
			if !ok {
				return false
			}
			if ev.Kind == kind {
				return l.Drain()
			}
		}
	}
}
