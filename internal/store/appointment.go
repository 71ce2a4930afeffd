package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"campus-care-api/internal/model"
)

const appointmentCols = `id, requester_id, requester_name, provider_id, provider_name, title,
	description, scheduled_at, status, created_at, decided_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	var status string
	var decidedAt *time.Time
	if err := row.Scan(&a.ID, &a.RequesterID, &a.RequesterName, &a.ProviderID, &a.ProviderName,
		&a.Title, &a.Description, &a.ScheduledAt, &status, &a.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	a.Status = model.AppointmentStatus(status)
	if decidedAt != nil {
		a.DecidedAt = *decidedAt
	}
	return a, nil
}

func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment, ev model.OutboxEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("create appointment", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO appointments (id, requester_id, requester_name, provider_id, provider_name,
		                           title, description, scheduled_at, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING created_at`,
		a.ID, a.RequesterID, a.RequesterName, a.ProviderID, a.ProviderName,
		a.Title, a.Description, a.ScheduledAt, string(a.Status),
	).Scan(&a.CreatedAt)
	if err != nil {
		return wrap("create appointment", err)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return wrap("create appointment", tx.Commit(ctx))
}

func (s *Store) AppointmentByID(ctx context.Context, id string) (*model.Appointment, error) {
	if err := checkID("appointment", id); err != nil {
		return nil, err
	}
	a, err := scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("appointment", err)
	}
	return a, nil
}

// DecideAppointment moves a pending appointment to outcome. The update is
// guarded by status = 'pending' so of two concurrent deciders exactly one
// wins; the other gets AlreadyDecided.
func (s *Store) DecideAppointment(ctx context.Context, id, deciderID string, outcome model.AppointmentStatus, ev model.OutboxEvent) (*model.Appointment, error) {
	if err := checkID("appointment", id); err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrap("decide appointment", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAppointment(tx.QueryRow(ctx,
		`UPDATE appointments SET status = $3, decided_at = now()
		 WHERE id = $1 AND provider_id = $2 AND status = 'pending'
		 RETURNING `+appointmentCols, id, deciderID, string(outcome)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.whyNotDecided(ctx, tx, id, deciderID)
	}
	if err != nil {
		return nil, wrap("decide appointment", err)
	}

	ev.Payload = withDefault(ev.Payload, "status", string(a.Status))
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("decide appointment", err)
	}
	return a, nil
}

func (s *Store) whyNotDecided(ctx context.Context, tx pgx.Tx, id, deciderID string) error {
	var providerID, status string
	err := tx.QueryRow(ctx,
		`SELECT provider_id, status FROM appointments WHERE id = $1`, id,
	).Scan(&providerID, &status)
	if err != nil {
		return wrap("appointment", err)
	}
	if providerID != deciderID {
		return model.Forbidden("only the assigned provider may decide this appointment")
	}
	return model.AlreadyDecided(id, model.AppointmentStatus(status))
}

// ListAppointments orders the provider side by creation, newest first, and
// the requester side by scheduled time, soonest first.
func (s *Store) ListAppointments(ctx context.Context, userID string, role model.Role, filter model.AppointmentFilter) ([]model.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE `
	order := ` ORDER BY scheduled_at ASC, id`
	if role == model.RoleProvider {
		q += `provider_id = $1`
		order = ` ORDER BY created_at DESC, id`
	} else {
		q += `requester_id = $1`
	}

	args := []any{userID}
	switch filter {
	case model.FilterPending:
		q += ` AND status = $2`
		args = append(args, string(model.StatusPending))
	case model.FilterApproved:
		q += ` AND status = $2`
		args = append(args, string(model.StatusApproved))
	}
	q += order

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, wrap("list appointments", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, wrap("scan appointment", err)
		}
		out = append(out, *a)
	}
	return out, wrap("list appointments", rows.Err())
}
