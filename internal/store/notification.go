package store

import (
	"context"
	"encoding/json"

	"campus-care-api/internal/model"
)

// InsertNotification is idempotent per dedupeKey so a redelivered outbox
// event does not notify twice. It reports whether a row was written.
func (s *Store) InsertNotification(ctx context.Context, n *model.Notification, dedupeKey string) (bool, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return false, model.Validation("notification payload: " + err.Error())
	}
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, target_user_id, type, title, body, ref_id, payload, dedupe_key)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		n.ID, n.TargetUserID, string(n.Type), n.Title, n.Body, n.RefID, payload, key,
	)
	if err != nil {
		return false, wrap("insert notification", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListNotifications returns the target's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_user_id, type, title, body, ref_id, payload, read, created_at
		 FROM notifications
		 WHERE target_user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrap("list notifications", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ string
		var payload []byte
		if err := rows.Scan(&n.ID, &n.TargetUserID, &typ, &n.Title, &n.Body, &n.RefID,
			&payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, wrap("scan notification", err)
		}
		n.Type = model.NotificationType(typ)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &n.Payload)
		}
		out = append(out, n)
	}
	return out, wrap("list notifications", rows.Err())
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	if err := checkID("notification", id); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND target_user_id = $2`, id, userID)
	if err != nil {
		return wrap("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("notification")
	}
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	if err := checkID("notification", id); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND target_user_id = $2`, id, userID)
	if err != nil {
		return wrap("dismiss notification", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("notification")
	}
	return nil
}
