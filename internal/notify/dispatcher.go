package notify

import (
	"context"
	"log/slog"
	"time"

	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
)

// maxBackoff caps the wait between deliveries of a failing event.
const maxBackoff = 5 * time.Minute

type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string, retryAt time.Time) error
	MarkDiscarded(ctx context.Context, id int64, cause string) error
}

type Handler interface {
	Handle(ctx context.Context, ev model.OutboxEvent) error
}

// Dispatcher polls the outbox and hands each event to the handler. An
// event is marked dispatched only after the handler succeeds, so delivery
// is at least once. Failed events are retried with exponential backoff
// for as long as the failure is transient.
type Dispatcher struct {
	outbox   Outbox
	handler  Handler
	interval time.Duration
	batch    int
	metrics  *metrics.Collector
	log      *slog.Logger
	now      func() time.Time
}

func NewDispatcher(outbox Outbox, h Handler, interval time.Duration, batch int, m *metrics.Collector, log *slog.Logger) *Dispatcher {
	return &Dispatcher{outbox: outbox, handler: h, interval: interval, batch: batch, metrics: m, log: log, now: time.Now}
}

func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("outbox dispatcher started", slog.Duration("interval", d.interval), slog.Int("batch", d.batch))
	tick := time.NewTicker(d.interval)
	defer tick.Stop()

	for {
		for {
			n, err := d.RunOnce(ctx)
			if err != nil {
				d.log.Error("outbox poll failed", slog.String("error", err.Error()))
			}
			// keep going while full batches are coming back
			if err != nil || n < d.batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return
		case <-tick.C:
		}
	}
}

// RunOnce processes one batch and returns how many events it picked up.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.PendingEvents(ctx, d.batch)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if ctx.Err() != nil {
			return len(events), nil
		}
		if err := d.handler.Handle(ctx, ev); err != nil {
			d.failed(ctx, ev, err)
			continue
		}
		if err := d.outbox.MarkDispatched(ctx, ev.ID); err != nil {
			// handled again on the next poll
			d.log.Error("outbox mark dispatched", slog.Int64("event_id", ev.ID), slog.String("error", err.Error()))
		}
	}
	return len(events), nil
}

func (d *Dispatcher) failed(ctx context.Context, ev model.OutboxEvent, cause error) {
	attrs := []any{
		slog.Int64("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.Int("attempts", ev.Attempts+1),
		slog.String("error", cause.Error()),
	}
	if poison(cause) {
		d.metrics.OutboxDiscarded()
		d.log.Error("outbox event discarded", attrs...)
		if err := d.outbox.MarkDiscarded(ctx, ev.ID, cause.Error()); err != nil {
			d.log.Error("outbox mark discarded", slog.Int64("event_id", ev.ID), slog.String("error", err.Error()))
		}
		return
	}

	retryAt := d.now().Add(d.backoff(ev.Attempts + 1))
	d.metrics.OutboxFailure()
	d.log.Warn("outbox event failed", append(attrs, slog.Time("retry_at", retryAt))...)
	if err := d.outbox.MarkFailed(ctx, ev.ID, cause.Error(), retryAt); err != nil {
		d.log.Error("outbox mark failed", slog.Int64("event_id", ev.ID), slog.String("error", err.Error()))
	}
}

// backoff doubles the poll interval per failed attempt up to maxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	wait := d.interval
	for i := 1; i < attempts && wait < maxBackoff; i++ {
		wait *= 2
	}
	return min(wait, maxBackoff)
}

// poison reports whether retrying can never help: the event refers to a
// record that does not exist or carries data that will never validate.
// Anything else, unknown errors included, is retried.
func poison(err error) bool {
	switch model.KindOf(err) {
	case model.KindNotFound, model.KindValidation:
		return true
	}
	return false
}
