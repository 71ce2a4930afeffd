package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"campus-care-api/internal/model"
)

const channelCols = `id, requester_id, provider_id, requester_name, provider_name, requester_avatar,
	specialization, created_at, last_message, last_message_at, status`

func scanChannel(row pgx.Row) (*model.Channel, error) {
	c := &model.Channel{}
	var lastAt *time.Time
	var status string
	if err := row.Scan(&c.ID, &c.RequesterID, &c.ProviderID, &c.RequesterName, &c.ProviderName,
		&c.RequesterAvatar, &c.Specialization, &c.CreatedAt, &c.LastMessage, &lastAt, &status); err != nil {
		return nil, err
	}
	if lastAt != nil {
		c.LastMessageAt = *lastAt
	}
	c.Status = model.ChannelStatus(status)
	return c, nil
}

func (s *Store) ChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	if err := checkID("channel", id); err != nil {
		return nil, err
	}
	c, err := scanChannel(s.pool.QueryRow(ctx,
		`SELECT `+channelCols+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("channel", err)
	}
	return c, nil
}

// InsertChannel reports false when a channel with the same id or pair
// already exists; nothing is written in that case.
func (s *Store) InsertChannel(ctx context.Context, c *model.Channel) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO channels (id, requester_id, provider_id, requester_name, provider_name,
		                       requester_avatar, specialization, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT DO NOTHING`,
		c.ID, c.RequesterID, c.ProviderID, c.RequesterName, c.ProviderName,
		c.RequesterAvatar, c.Specialization, string(c.Status),
	)
	if err != nil {
		return false, wrap("create channel", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ChannelsFor lists the user's channels, most recent activity first.
func (s *Store) ChannelsFor(ctx context.Context, userID string, role model.Role) ([]model.Channel, error) {
	col := "requester_id"
	if role == model.RoleProvider {
		col = "provider_id"
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelCols+` FROM channels
		 WHERE `+col+` = $1
		 ORDER BY COALESCE(last_message_at, created_at) DESC, id`, userID)
	if err != nil {
		return nil, wrap("list channels", err)
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, wrap("scan channel", err)
		}
		out = append(out, *c)
	}
	return out, wrap("list channels", rows.Err())
}

// UpdateChannelSummary never moves the summary backwards in time.
func (s *Store) UpdateChannelSummary(ctx context.Context, channelID, text string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE channels SET last_message = $2, last_message_at = $3
		 WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $3)`,
		channelID, text, at,
	)
	return wrap("update channel summary", err)
}
