package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"campus-care-api/internal/model"
)

func insertEvent(ctx context.Context, tx pgx.Tx, ev model.OutboxEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return model.Validation("event payload: " + err.Error())
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox_events (kind, ref_id, actor_id, payload) VALUES ($1,$2,$3,$4)`,
		string(ev.Kind), ev.RefID, ev.ActorID, payload,
	)
	return wrap("insert event", err)
}

// AppendEvent records an event that has no accompanying row change.
func (s *Store) AppendEvent(ctx context.Context, ev model.OutboxEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("append event", err)
	}
	defer tx.Rollback(ctx)
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return wrap("append event", tx.Commit(ctx))
}

// PendingEvents returns undispatched events that are due, oldest first.
// A failed event becomes due again at its next_attempt_at.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, ref_id, actor_id, payload, created_at, attempts
		FROM outbox_events
		WHERE dispatched_at IS NULL AND next_attempt_at <= now()
		ORDER BY next_attempt_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("pending events", err)
	}
	defer rows.Close()

	var out []model.OutboxEvent
	for rows.Next() {
		var ev model.OutboxEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&ev.ID, &kind, &ev.RefID, &ev.ActorID, &payload, &ev.CreatedAt, &ev.Attempts); err != nil {
			return nil, wrap("scan event", err)
		}
		ev.Kind = model.EventKind(kind)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, wrap("pending events", rows.Err())
}

func (s *Store) MarkDispatched(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET dispatched_at = now() WHERE id = $1`, id)
	return wrap("mark dispatched", err)
}

// MarkFailed records a failed delivery and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause string, retryAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1`, id, cause, retryAt)
	return wrap("mark failed", err)
}

// MarkDiscarded takes an event that can never be delivered out of the
// queue. The row and its last error are kept for inspection.
func (s *Store) MarkDiscarded(ctx context.Context, id int64, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2, dispatched_at = now(), discarded_at = now()
		WHERE id = $1`, id, cause)
	return wrap("mark discarded", err)
}
