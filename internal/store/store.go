package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campus-care-api/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// wrap turns driver errors into the model taxonomy. what names the
// record for NotFound and the operation otherwise.
func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NotFound(what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		// invalid_text_representation: the caller sent a malformed value
		return model.Validation("invalid " + what)
	}
	return model.Transient(what, err)
}

// checkID rejects an id that cannot be a primary key. Keys are uuids, so
// anything else names no row.
func checkID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NotFound(what)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
