package handler

import (
	"context"

	"google.golang.org/grpc"

	"campus-care-api/internal/appointment"
	"campus-care-api/internal/wire"
)

func (h *Handler) CreateAppointment(ctx context.Context, req *wire.CreateAppointmentRequest) (*wire.Appointment, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	a, err := h.workflow.Create(ctx, p, appointment.Request{
		ProviderID:  req.ProviderID,
		Title:       req.Title,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return nil, h.fail(err)
	}
	out := wire.FromAppointment(a)
	return &out, nil
}

func (h *Handler) DecideAppointment(ctx context.Context, req *wire.DecideAppointmentRequest) (*wire.Appointment, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	a, err := h.workflow.Decide(ctx, p, req.AppointmentID, req.Outcome)
	if err != nil {
		return nil, h.fail(err)
	}
	out := wire.FromAppointment(a)
	return &out, nil
}

func (h *Handler) WatchAppointments(req *wire.WatchAppointmentsRequest, ss grpc.ServerStream) error {
	ctx := ss.Context()
	p, err := caller(ctx)
	if err != nil {
		return err
	}
	sub, err := h.workflow.Watch(ctx, p, req.Filter)
	if err != nil {
		return h.fail(err)
	}
	defer h.metrics.SubscriptionOpened("appointments")()
	return pump(h, ss, sub, wire.FromAppointments)
}
