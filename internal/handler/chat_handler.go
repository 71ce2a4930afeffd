package handler

import (
	"context"

	"google.golang.org/grpc"

	"campus-care-api/internal/model"
	"campus-care-api/internal/wire"
)

func (h *Handler) FindOrCreateChannel(ctx context.Context, req *wire.FindOrCreateChannelRequest) (*wire.ChannelResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ch, created, err := h.directory.FindOrCreate(ctx, p, req.ProviderID)
	if err != nil {
		return nil, h.fail(err)
	}
	out := wire.FromChannel(ch)
	return &wire.ChannelResponse{Channel: &out, Created: created}, nil
}

func (h *Handler) WatchChannels(_ *wire.Empty, ss grpc.ServerStream) error {
	ctx := ss.Context()
	p, err := caller(ctx)
	if err != nil {
		return err
	}
	sub, err := h.directory.Watch(ctx, p)
	if err != nil {
		return h.fail(err)
	}
	defer h.metrics.SubscriptionOpened("channels")()
	return pump(h, ss, sub, wire.FromChannels)
}

func (h *Handler) AppendMessage(ctx context.Context, req *wire.AppendMessageRequest) (*wire.Message, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := h.stream.Append(ctx, p, req.ChannelID, req.Text)
	if err != nil {
		return nil, h.fail(err)
	}
	return wire.FromMessage(m), nil
}

func (h *Handler) SubscribeMessages(req *wire.SubscribeMessagesRequest, ss grpc.ServerStream) error {
	ctx := ss.Context()
	p, err := caller(ctx)
	if err != nil {
		return err
	}
	sub, err := h.stream.Subscribe(ctx, p, req.ChannelID)
	if err != nil {
		return h.fail(err)
	}
	defer h.metrics.SubscriptionOpened("messages")()
	return pump(h, ss, sub, wire.FromMessage)
}

func (h *Handler) SearchProviders(ctx context.Context, req *wire.SearchProvidersRequest) (*wire.ProfileList, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if !p.RoleKnown() {
		return nil, h.fail(model.Forbidden("role unknown"))
	}
	ps, err := h.search.SearchProviders(ctx, req.Query, int(req.Limit))
	if err != nil {
		return nil, h.fail(err)
	}
	return wire.FromProfiles(ps), nil
}
