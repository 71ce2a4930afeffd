package notify

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/model"
	"campus-care-api/internal/security"
	"campus-care-api/internal/stream"
)

const inboxLimit = 100

type InboxStore interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	DeleteNotification(ctx context.Context, id, userID string) error
	AppendEvent(ctx context.Context, ev model.OutboxEvent) error
}

// Inbox is the user-facing side: a live list plus read and dismiss.
type Inbox struct {
	store     InboxStore
	bus       feed.Bus
	sanitizer *security.Sanitizer
	log       *slog.Logger
}

func NewInbox(st InboxStore, bus feed.Bus, san *security.Sanitizer, log *slog.Logger) *Inbox {
	return &Inbox{store: st, bus: bus, sanitizer: san, log: log}
}

// Watch streams the viewer's notifications, newest first.
func (in *Inbox) Watch(ctx context.Context, viewer model.Profile) (*stream.Subscription[[]model.Notification], error) {
	return feed.Snapshot(ctx, in.bus, []string{feed.UserTopic(viewer.ID)}, feed.KindNotification, func(ctx context.Context) ([]model.Notification, error) {
		return in.store.ListNotifications(ctx, viewer.ID, inboxLimit)
	})
}

func (in *Inbox) MarkRead(ctx context.Context, viewer model.Profile, id string) error {
	if err := in.store.MarkNotificationRead(ctx, id, viewer.ID); err != nil {
		return err
	}
	in.changed(ctx, viewer.ID, id)
	return nil
}

func (in *Inbox) Dismiss(ctx context.Context, viewer model.Profile, id string) error {
	if err := in.store.DeleteNotification(ctx, id, viewer.ID); err != nil {
		return err
	}
	in.changed(ctx, viewer.ID, id)
	return nil
}

// RaiseEmergency records an emergency for fan-out to transport assistants.
func (in *Inbox) RaiseEmergency(ctx context.Context, requester model.Profile, note, location string) error {
	if requester.Role != model.RoleRequester {
		return model.Forbidden("only requesters can raise an emergency")
	}
	note, location = in.sanitizer.Text(note), in.sanitizer.Text(location)
	if utf8.RuneCountInString(note) > 1000 || utf8.RuneCountInString(location) > 200 {
		return model.Validation("emergency details are too long")
	}
	err := in.store.AppendEvent(ctx, model.OutboxEvent{
		Kind:    model.EventEmergencyRaised,
		RefID:   requester.ID,
		ActorID: requester.ID,
		Payload: map[string]string{"note": note, "location": location},
	})
	if err != nil {
		in.log.Error("notify: raise emergency failed", "requester_id", requester.ID, "error", err)
		return err
	}
	in.log.Warn("notify: emergency raised", "requester_id", requester.ID)
	return nil
}

func (in *Inbox) changed(ctx context.Context, userID, id string) {
	if err := in.bus.Publish(ctx, feed.UserTopic(userID), feed.Event{Kind: feed.KindNotification, RefID: id}); err != nil {
		in.log.Warn("notify: publish failed", "notification_id", id, "error", err)
	}
}
