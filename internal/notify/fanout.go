// Package notify turns outbox events into per-user notifications and
// serves each user's notification inbox.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
	"campus-care-api/internal/presence"
)

type FanoutStore interface {
	ProfileByID(ctx context.Context, id string) (*model.Profile, error)
	ProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error)
	AppointmentByID(ctx context.Context, id string) (*model.Appointment, error)
	ChannelByID(ctx context.Context, id string) (*model.Channel, error)
	InsertNotification(ctx context.Context, n *model.Notification, dedupeKey string) (bool, error)
}

// Fanout derives notifications from events. Handling the same event twice
// writes nothing new.
type Fanout struct {
	store    FanoutStore
	presence presence.Tracker
	bus      feed.Bus
	metrics  *metrics.Collector
	log      *slog.Logger
}

func NewFanout(st FanoutStore, pr presence.Tracker, bus feed.Bus, m *metrics.Collector, log *slog.Logger) *Fanout {
	return &Fanout{store: st, presence: pr, bus: bus, metrics: m, log: log}
}

func (f *Fanout) Handle(ctx context.Context, ev model.OutboxEvent) error {
	switch ev.Kind {
	case model.EventAppointmentCreated:
		return f.appointmentCreated(ctx, ev)
	case model.EventAppointmentDecided:
		return f.appointmentDecided(ctx, ev)
	case model.EventMessageAppended:
		return f.messageAppended(ctx, ev)
	case model.EventEmergencyRaised:
		return f.emergencyRaised(ctx, ev)
	}
	f.log.Warn("notify: unknown event kind", "event_id", ev.ID, "kind", ev.Kind)
	return nil
}

func (f *Fanout) appointmentCreated(ctx context.Context, ev model.OutboxEvent) error {
	a, err := f.store.AppointmentByID(ctx, ev.RefID)
	if err != nil {
		return err
	}
	return f.emit(ctx, ev, model.Notification{
		TargetUserID: a.ProviderID,
		Type:         model.NotifyNewAppointment,
		Title:        "New appointment request",
		Body:         fmt.Sprintf("%s requested %q for %s", a.RequesterName, a.Title, a.ScheduledAt.Format(time.RFC1123)),
		RefID:        a.ID,
		Payload: map[string]string{
			"appointment_id": a.ID,
			"requester_id":   a.RequesterID,
			"scheduled_at":   a.ScheduledAt.Format(time.RFC3339),
		},
	})
}

func (f *Fanout) appointmentDecided(ctx context.Context, ev model.OutboxEvent) error {
	a, err := f.store.AppointmentByID(ctx, ev.RefID)
	if err != nil {
		return err
	}
	status := model.AppointmentStatus(ev.Payload["status"])
	if !status.Terminal() {
		status = a.Status
	}
	return f.emit(ctx, ev, model.Notification{
		TargetUserID: a.RequesterID,
		Type:         model.NotifyAppointmentDecided,
		Title:        "Appointment " + string(status),
		Body:         fmt.Sprintf("%s %s your request %q", a.ProviderName, status, a.Title),
		RefID:        a.ID,
		Payload: map[string]string{
			"appointment_id": a.ID,
			"provider_id":    a.ProviderID,
			"status":         string(status),
		},
	})
}

// messageAppended skips recipients who have the channel open.
func (f *Fanout) messageAppended(ctx context.Context, ev model.OutboxEvent) error {
	ch, err := f.store.ChannelByID(ctx, ev.RefID)
	if err != nil {
		return err
	}
	recipient, ok := ch.Counterpart(ev.ActorID)
	if !ok {
		f.log.Warn("notify: message sender is not a participant", "channel_id", ch.ID, "sender_id", ev.ActorID)
		return nil
	}

	viewing, err := f.presence.Viewing(ctx, ch.ID, recipient)
	if err != nil {
		// on error, notify anyway
		f.log.Warn("notify: presence lookup failed", "channel_id", ch.ID, "error", err)
	}
	if viewing {
		f.metrics.NotificationSuppressed()
		return nil
	}

	sender := ev.Payload["sender_name"]
	if sender == "" {
		sender = "your contact"
	}
	return f.emit(ctx, ev, model.Notification{
		TargetUserID: recipient,
		Type:         model.NotifyNewMessage,
		Title:        "New message from " + sender,
		Body:         ev.Payload["preview"],
		RefID:        ch.ID,
		Payload: map[string]string{
			"channel_id": ch.ID,
			"message_id": ev.Payload["message_id"],
			"sender_id":  ev.ActorID,
		},
	})
}

// emergencyRaised alerts every transport assistant.
func (f *Fanout) emergencyRaised(ctx context.Context, ev model.OutboxEvent) error {
	assistants, err := f.store.ProfilesByRole(ctx, model.RoleTransportAssistant)
	if err != nil {
		return err
	}
	if len(assistants) == 0 {
		f.log.Warn("notify: emergency raised but no transport assistants exist", "requester_id", ev.ActorID)
		return nil
	}

	name := ev.ActorID
	if p, err := f.store.ProfileByID(ctx, ev.ActorID); err == nil && p.DisplayName != "" {
		name = p.DisplayName
	}
	body := []string{name + " needs assistance."}
	if note := ev.Payload["note"]; note != "" {
		body = append(body, note)
	}
	if loc := ev.Payload["location"]; loc != "" {
		body = append(body, "Location: "+loc)
	}

	for _, ta := range assistants {
		err := f.emit(ctx, ev, model.Notification{
			TargetUserID: ta.ID,
			Type:         model.NotifyEmergency,
			Title:        "Emergency assistance requested",
			Body:         strings.Join(body, " "),
			RefID:        ev.ActorID,
			Payload: map[string]string{
				"requester_id": ev.ActorID,
				"location":     ev.Payload["location"],
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Fanout) emit(ctx context.Context, ev model.OutboxEvent, n model.Notification) error {
	n.ID = uuid.NewString()
	created, err := f.store.InsertNotification(ctx, &n, fmt.Sprintf("%d:%s", ev.ID, n.TargetUserID))
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	f.metrics.NotificationEmitted(string(n.Type))
	if err := f.bus.Publish(ctx, feed.UserTopic(n.TargetUserID), feed.Event{Kind: feed.KindNotification, RefID: n.ID}); err != nil {
		f.log.Warn("notify: publish failed", "notification_id", n.ID, "error", err)
	}
	return nil
}
