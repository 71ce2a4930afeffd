// Package appointment runs the request/decision workflow:
// pending moves once to approved or rejected and never again.
package appointment

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"campus-care-api/internal/feed"
	"campus-care-api/internal/metrics"
	"campus-care-api/internal/model"
	"campus-care-api/internal/security"
	"campus-care-api/internal/stream"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 4000
)

type Store interface {
	ProfileByID(ctx context.Context, id string) (*model.Profile, error)
	CreateAppointment(ctx context.Context, a *model.Appointment, ev model.OutboxEvent) error
	DecideAppointment(ctx context.Context, id, deciderID string, outcome model.AppointmentStatus, ev model.OutboxEvent) (*model.Appointment, error)
	ListAppointments(ctx context.Context, userID string, role model.Role, filter model.AppointmentFilter) ([]model.Appointment, error)
}

type Request struct {
	ProviderID  string
	Title       string
	Description string
	ScheduledAt time.Time
}

type Workflow struct {
	store     Store
	bus       feed.Bus
	sanitizer *security.Sanitizer
	metrics   *metrics.Collector
	log       *slog.Logger
}

func NewWorkflow(st Store, bus feed.Bus, san *security.Sanitizer, m *metrics.Collector, log *slog.Logger) *Workflow {
	return &Workflow{store: st, bus: bus, sanitizer: san, metrics: m, log: log}
}

func (w *Workflow) Create(ctx context.Context, requester model.Profile, req Request) (model.Appointment, error) {
	if requester.Role != model.RoleRequester {
		return model.Appointment{}, model.Forbidden("only requesters can request appointments")
	}
	title := w.sanitizer.Text(req.Title)
	desc := w.sanitizer.Text(req.Description)
	switch {
	case title == "":
		return model.Appointment{}, model.Validation("title is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		return model.Appointment{}, model.Validation("title is too long")
	case utf8.RuneCountInString(desc) > maxDescriptionLen:
		return model.Appointment{}, model.Validation("description is too long")
	case req.ScheduledAt.IsZero():
		return model.Appointment{}, model.Validation("scheduled time is required")
	case req.ProviderID == "":
		return model.Appointment{}, model.Validation("provider id is required")
	}

	provider, err := w.store.ProfileByID(ctx, req.ProviderID)
	if err != nil {
		return model.Appointment{}, err
	}
	if provider.Role != model.RoleProvider {
		return model.Appointment{}, model.Validation("counterpart is not a provider")
	}

	a := &model.Appointment{
		ID:            uuid.NewString(),
		RequesterID:   requester.ID,
		RequesterName: requester.DisplayName,
		ProviderID:    provider.ID,
		ProviderName:  provider.DisplayName,
		Title:         title,
		Description:   desc,
		ScheduledAt:   req.ScheduledAt.UTC(),
		Status:        model.StatusPending,
	}
	ev := model.OutboxEvent{Kind: model.EventAppointmentCreated, RefID: a.ID, ActorID: requester.ID}
	if err := w.store.CreateAppointment(ctx, a, ev); err != nil {
		w.log.Error("appointment: create failed", "requester_id", requester.ID, "error", err)
		return model.Appointment{}, err
	}

	w.metrics.AppointmentCreated()
	w.log.Info("appointment: created", "appointment_id", a.ID, "provider_id", a.ProviderID)
	w.publish(ctx, *a)
	return *a, nil
}

// Decide settles a pending appointment. Only the provider on the record
// may decide, and only once; a second decision reports AlreadyDecided.
func (w *Workflow) Decide(ctx context.Context, decider model.Profile, appointmentID, outcome string) (model.Appointment, error) {
	st, ok := model.ParseOutcome(outcome)
	if !ok {
		return model.Appointment{}, model.Validation("outcome must be approved or rejected")
	}
	if decider.Role != model.RoleProvider {
		return model.Appointment{}, model.Forbidden("only providers can decide appointments")
	}
	if appointmentID == "" {
		return model.Appointment{}, model.Validation("appointment id is required")
	}

	ev := model.OutboxEvent{Kind: model.EventAppointmentDecided, RefID: appointmentID, ActorID: decider.ID}
	a, err := w.store.DecideAppointment(ctx, appointmentID, decider.ID, st, ev)
	if err != nil {
		if model.IsKind(err, model.KindTransient) {
			w.log.Error("appointment: decide failed", "appointment_id", appointmentID, "error", err)
		}
		return model.Appointment{}, err
	}

	w.metrics.AppointmentDecided(string(a.Status))
	w.log.Info("appointment: decided", "appointment_id", a.ID, "status", a.Status)
	w.publish(ctx, *a)
	return *a, nil
}

// Watch streams the viewer's appointments: providers see newest requests
// first, requesters see the soonest scheduled first.
func (w *Workflow) Watch(ctx context.Context, viewer model.Profile, filter string) (*stream.Subscription[[]model.Appointment], error) {
	f, ok := model.ParseFilter(filter)
	if !ok {
		return nil, model.Validation("filter must be pending, approved or all")
	}
	if viewer.Role != model.RoleRequester && viewer.Role != model.RoleProvider {
		return nil, model.Forbidden("appointments are only available to requesters and providers")
	}
	return feed.Snapshot(ctx, w.bus, []string{feed.UserTopic(viewer.ID)}, feed.KindAppointment, func(ctx context.Context) ([]model.Appointment, error) {
		return w.store.ListAppointments(ctx, viewer.ID, viewer.Role, f)
	})
}

func (w *Workflow) publish(ctx context.Context, a model.Appointment) {
	ev := feed.Event{Kind: feed.KindAppointment, RefID: a.ID}
	for _, uid := range []string{a.RequesterID, a.ProviderID} {
		if err := w.bus.Publish(ctx, feed.UserTopic(uid), ev); err != nil {
			w.log.Warn("appointment: publish failed", "appointment_id", a.ID, "error", err)
		}
	}
}
