// Package search finds providers by name, specialization or email.
package search

import (
	"context"
	"log/slog"
	"strings"

	"campus-care-api/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type Fallback interface {
	SearchProfiles(ctx context.Context, role model.Role, query string, limit int) ([]model.Profile, error)
	ProfilesByRole(ctx context.Context, role model.Role) ([]model.Profile, error)
}

type Engine interface {
	Healthy() bool
	SearchProviders(text string, limit int) ([]model.Profile, error)
	IndexProviders(ps []model.Profile) error
}

// Service tries the search engine first and falls back to the database.
type Service struct {
	engine Engine
	store  Fallback
	log    *slog.Logger
}

// NewService accepts a nil engine when Meilisearch is not configured.
func NewService(engine Engine, st Fallback, log *slog.Logger) *Service {
	return &Service{engine: engine, store: st, log: log}
}

func (s *Service) SearchProviders(ctx context.Context, query string, limit int) ([]model.Profile, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	if s.engine != nil && s.engine.Healthy() {
		out, err := s.engine.SearchProviders(query, limit)
		if err == nil {
			return out, nil
		}
		s.log.Warn("search: engine error, falling back to postgres", "error", err)
	}
	return s.store.SearchProfiles(ctx, model.RoleProvider, query, limit)
}

// IndexProvider is fire-and-forget.
func (s *Service) IndexProvider(p model.Profile) {
	if s.engine == nil || !s.engine.Healthy() || p.Role != model.RoleProvider {
		return
	}
	go func() {
		if err := s.engine.IndexProviders([]model.Profile{p}); err != nil {
			s.log.Warn("search: index provider", "user_id", p.ID, "error", err)
		}
	}()
}

// Reindex loads every provider into the engine.
func (s *Service) Reindex(ctx context.Context) error {
	if s.engine == nil || !s.engine.Healthy() {
		return nil
	}
	ps, err := s.store.ProfilesByRole(ctx, model.RoleProvider)
	if err != nil {
		return err
	}
	if err := s.engine.IndexProviders(ps); err != nil {
		return err
	}
	s.log.Info("search: providers indexed", "count", len(ps))
	return nil
}
