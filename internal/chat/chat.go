// Package chat owns the one-to-one channels between requesters and
// providers and the ordered message log inside each.
package chat

import (
	"context"
	"time"

	"campus-care-api/internal/model"
)

type Store interface {
	ProfileByID(ctx context.Context, id string) (*model.Profile, error)
	ChannelByID(ctx context.Context, id string) (*model.Channel, error)
	InsertChannel(ctx context.Context, c *model.Channel) (bool, error)
	ChannelsFor(ctx context.Context, userID string, role model.Role) ([]model.Channel, error)
	UpdateChannelSummary(ctx context.Context, channelID, text string, at time.Time) error
	AppendMessage(ctx context.Context, m *model.Message, ev model.OutboxEvent) error
	MessagesAfter(ctx context.Context, channelID string, after model.Message, limit int) ([]model.Message, error)
}
