// Package identity maps authenticated principals to profiles and keeps the
// per-connection session that live feeds hang off.
package identity

import (
	"context"
	"log/slog"
	"strings"

	"campus-care-api/internal/auth"
	"campus-care-api/internal/model"
)

type ProfileStore interface {
	ProfileByID(ctx context.Context, id string) (*model.Profile, error)
	EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error)
}

type TokenParser interface {
	ParseToken(raw string) (*auth.Claims, error)
}

type Resolver struct {
	profiles    ProfileStore
	tokens      TokenParser
	defaultRole model.Role
	log         *slog.Logger
}

func NewResolver(profiles ProfileStore, tokens TokenParser, defaultRole model.Role, log *slog.Logger) *Resolver {
	return &Resolver{profiles: profiles, tokens: tokens, defaultRole: defaultRole, log: log}
}

// Resolve verifies a bearer token and returns the caller's profile.
func (r *Resolver) Resolve(ctx context.Context, raw string) (model.Profile, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return model.Profile{}, model.Unauthenticated("no token")
	}
	claims, err := r.tokens.ParseToken(raw)
	if err != nil {
		return model.Profile{}, model.Unauthenticated("bad token")
	}
	return r.Profile(ctx, claims.UserID, claims.Email), nil
}

// Profile never fails. A principal without a profile gets a minimal one
// with the default role; a profile that cannot be read comes back with
// RoleUnknown, which every role-scoped check refuses.
func (r *Resolver) Profile(ctx context.Context, principalID, email string) model.Profile {
	p, err := r.profiles.ProfileByID(ctx, principalID)
	if err == nil {
		return *p
	}

	if model.IsKind(err, model.KindNotFound) {
		p, err = r.profiles.EnsureProfile(ctx, &model.Profile{
			ID:          principalID,
			Email:       email,
			Role:        r.defaultRole,
			DisplayName: nameFromEmail(email),
		})
		if err == nil {
			r.log.Info("identity: created fallback profile", "user_id", principalID, "role", p.Role)
			return *p
		}
	}

	r.log.Warn("identity: profile unavailable, role unknown", "user_id", principalID, "error", err)
	return model.Profile{ID: principalID, Email: email, Role: model.RoleUnknown, DisplayName: nameFromEmail(email)}
}

func nameFromEmail(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
