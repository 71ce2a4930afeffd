package store

import (
	"context"

	"campus-care-api/internal/model"
)

// AppendMessage stores m and its outbox event in one transaction. The
// channel row is locked so sent_at and seq follow commit order; sent_at
// never goes backwards within a channel.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message, ev model.OutboxEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("append message", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM channels WHERE id = $1 FOR UPDATE`, m.ChannelID).Scan(&locked); err != nil {
		return wrap("channel", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, sender_role, text, sent_at)
		 VALUES ($1,$2,$3,$4,$5, GREATEST(clock_timestamp(),
		     COALESCE((SELECT max(sent_at) FROM messages WHERE channel_id = $2), '-infinity')))
		 RETURNING sent_at, seq`,
		m.ID, m.ChannelID, m.SenderID, string(m.SenderRole), m.Text,
	).Scan(&m.SentAt, &m.Seq)
	if err != nil {
		return wrap("append message", err)
	}

	ev.Payload = withDefault(ev.Payload, "message_id", m.ID)
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}

	return wrap("append message", tx.Commit(ctx))
}

// MessagesAfter returns up to limit messages ordered after the cursor.
// A zero cursor starts from the beginning of the channel.
func (s *Store) MessagesAfter(ctx context.Context, channelID string, after model.Message, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_id, sender_id, sender_role, text, sent_at, seq
		 FROM messages
		 WHERE channel_id = $1 AND (sent_at, seq) > ($2, $3)
		 ORDER BY sent_at, seq
		 LIMIT $4`, channelID, after.SentAt, after.Seq, limit)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &role, &m.Text, &m.SentAt, &m.Seq); err != nil {
			return nil, wrap("scan message", err)
		}
		m.SenderRole = model.Role(role)
		out = append(out, m)
	}
	return out, wrap("list messages", rows.Err())
}

func withDefault(p map[string]string, k, v string) map[string]string {
	if p == nil {
		p = make(map[string]string)
	}
	if _, ok := p[k]; !ok {
		p[k] = v
	}
	return p
}
