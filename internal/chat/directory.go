package chat

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/model"
	"campus-care-api/internal/stream"
)

var channelNamespace = uuid.MustParse("6f1c2a4e-8d0b-4c47-9a5e-3b7d2f915c60")

// ChannelID derives the channel id from the participant pair, so every
// caller for the same pair computes the same id.
func ChannelID(requesterID, providerID string) string {
	pair := []string{requesterID, providerID}
	slices.Sort(pair)
	return uuid.NewSHA1(channelNamespace, []byte(pair[0]+"|"+pair[1])).String()
}

type Directory struct {
	store Store
	bus   feed.Bus
	log   *slog.Logger
}

func NewDirectory(st Store, bus feed.Bus, log *slog.Logger) *Directory {
	return &Directory{store: st, bus: bus, log: log}
}

// FindOrCreate returns the requester's channel with providerID, creating it
// on first use. created is true only for the caller whose insert landed.
func (d *Directory) FindOrCreate(ctx context.Context, requester model.Profile, providerID string) (ch model.Channel, created bool, err error) {
	if requester.Role != model.RoleRequester {
		return model.Channel{}, false, model.Forbidden("only requesters can start a conversation")
	}
	if providerID == "" || providerID == requester.ID {
		return model.Channel{}, false, model.Validation("provider id is required")
	}

	id := ChannelID(requester.ID, providerID)
	existing, err := d.store.ChannelByID(ctx, id)
	if err == nil {
		return *existing, false, nil
	}
	if !model.IsKind(err, model.KindNotFound) {
		return model.Channel{}, false, err
	}

	provider, err := d.store.ProfileByID(ctx, providerID)
	if err != nil {
		return model.Channel{}, false, err
	}
	if provider.Role != model.RoleProvider {
		return model.Channel{}, false, model.Validation("counterpart is not a provider")
	}

	c := &model.Channel{
		ID:              id,
		RequesterID:     requester.ID,
		ProviderID:      provider.ID,
		RequesterName:   requester.DisplayName,
		ProviderName:    provider.DisplayName,
		RequesterAvatar: requester.AvatarURL,
		Specialization:  provider.Specialization,
		Status:          model.ChannelActive,
	}
	created, err = d.store.InsertChannel(ctx, c)
	if err != nil {
		d.log.Error("chat: create channel failed", "channel_id", id, "error", err)
		return model.Channel{}, false, err
	}

	stored, err := d.store.ChannelByID(ctx, id)
	if err != nil {
		return model.Channel{}, false, err
	}
	if created {
		d.log.Info("chat: channel created", "channel_id", id, "requester_id", requester.ID, "provider_id", provider.ID)
		publishChannel(ctx, d.bus, d.log, *stored)
	}
	return *stored, created, nil
}

// Watch streams the viewer's channel list, most recent activity first.
func (d *Directory) Watch(ctx context.Context, viewer model.Profile) (*stream.Subscription[[]model.Channel], error) {
	if viewer.Role != model.RoleRequester && viewer.Role != model.RoleProvider {
		return nil, model.Forbidden("channel list is only available to requesters and providers")
	}
	return feed.Snapshot(ctx, d.bus, []string{feed.UserTopic(viewer.ID)}, feed.KindChannel, func(ctx context.Context) ([]model.Channel, error) {
		return d.store.ChannelsFor(ctx, viewer.ID, viewer.Role)
	})
}

func publishChannel(ctx context.Context, bus feed.Bus, log *slog.Logger, c model.Channel) {
	ev := feed.Event{Kind: feed.KindChannel, RefID: c.ID}
	for _, uid := range []string{c.RequesterID, c.ProviderID} {
		if err := bus.Publish(ctx, feed.UserTopic(uid), ev); err != nil {
			log.Warn("chat: publish channel event failed", "channel_id", c.ID, "error", err)
		}
	}
}
