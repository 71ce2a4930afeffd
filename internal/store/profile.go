package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"campus-care-api/internal/model"
)

const profileCols = `id, email, role, first_name, last_name, display_name, avatar_url, specialization, created_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	var role string
	if err := row.Scan(&p.ID, &p.Email, &role, &p.FirstName, &p.LastName,
		&p.DisplayName, &p.AvatarURL, &p.Specialization, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	return p, nil
}

func (s *Store) ProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	if err := checkID("profile", id); err != nil {
		return nil, err
	}
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("profile", err)
	}
	return p, nil
}

// EnsureProfile inserts p unless a profile already exists for its id and
// returns whatever is stored. An existing role is never overwritten.
func (s *Store) EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, email, role, first_name, last_name, display_name, avatar_url, specialization)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Email, string(p.Role), p.FirstName, p.LastName, p.DisplayName, p.AvatarURL, p.Specialization,
	)
	if err != nil {
		return nil, wrap("ensure profile", err)
	}
	return s.ProfileByID(ctx, p.ID)
}

func (s *Store) ProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE role = $1 ORDER BY display_name, id`, string(role))
	if err != nil {
		return nil, wrap("list profiles", err)
	}
	return collectProfiles(rows)
}

// SearchProfiles matches name, specialization or email case-insensitively.
func (s *Store) SearchProfiles(ctx context.Context, role model.Role, query string, limit int) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileCols+` FROM profiles
		 WHERE role = $1
		   AND ($2 = '' OR display_name ILIKE '%' || $2 || '%'
		        OR specialization ILIKE '%' || $2 || '%'
		        OR email ILIKE '%' || $2 || '%')
		 ORDER BY display_name, id
		 LIMIT $3`, string(role), query, limit)
	if err != nil {
		return nil, wrap("search profiles", err)
	}
	return collectProfiles(rows)
}

func collectProfiles(rows pgx.Rows) ([]model.Profile, error) {
	defer rows.Close()
	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, wrap("scan profile", err)
		}
		out = append(out, *p)
	}
	return out, wrap("list profiles", rows.Err())
}
