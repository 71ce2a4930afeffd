package handler

import (
	"context"

	"google.golang.org/grpc"

	"campus-care-api/internal/wire"
)

func (h *Handler) WatchNotifications(_ *wire.Empty, ss grpc.ServerStream) error {
	ctx := ss.Context()
	p, err := caller(ctx)
	if err != nil {
		return err
	}
	sub, err := h.inbox.Watch(ctx, p)
	if err != nil {
		return h.fail(err)
	}
	defer h.metrics.SubscriptionOpened("notifications")()
	return pump(h, ss, sub, wire.FromNotifications)
}

func (h *Handler) MarkNotificationRead(ctx context.Context, req *wire.NotificationRef) (*wire.Empty, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.inbox.MarkRead(ctx, p, req.NotificationID); err != nil {
		return nil, h.fail(err)
	}
	return &wire.Empty{}, nil
}

func (h *Handler) DismissNotification(ctx context.Context, req *wire.NotificationRef) (*wire.Empty, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.inbox.Dismiss(ctx, p, req.NotificationID); err != nil {
		return nil, h.fail(err)
	}
	return &wire.Empty{}, nil
}

func (h *Handler) RaiseEmergency(ctx context.Context, req *wire.RaiseEmergencyRequest) (*wire.Empty, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.inbox.RaiseEmergency(ctx, p, req.Note, req.Location); err != nil {
		return nil, h.fail(err)
	}
	return &wire.Empty{}, nil
}
