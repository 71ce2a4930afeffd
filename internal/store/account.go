package store

import (
	"context"

	"campus-care-api/internal/model"
)

// CreateAccount writes the credentials and the profile together.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account, p *model.Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("create account", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (id, email, password_hash) VALUES ($1,$2,$3) RETURNING created_at`,
		a.ID, a.Email, a.PasswordHash,
	).Scan(&a.CreatedAt)
	if err != nil {
		// unique violation = dup email, but don't reveal that
		if isUniqueViolation(err) {
			return model.Validation("registration failed")
		}
		return wrap("create account", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO profiles (id, email, role, first_name, last_name, display_name, avatar_url, specialization)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING created_at`,
		p.ID, p.Email, string(p.Role), p.FirstName, p.LastName, p.DisplayName, p.AvatarURL, p.Specialization,
	).Scan(&p.CreatedAt)
	if err != nil {
		return wrap("create profile", err)
	}

	return wrap("create account", tx.Commit(ctx))
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	a := &model.Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, wrap("account", err)
	}
	return a, nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	if err := checkID("account", id); err != nil {
		return nil, err
	}
	a := &model.Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, wrap("account", err)
	}
	return a, nil
}
