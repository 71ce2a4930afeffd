package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"campus-care-api/internal/model"
)

type fakeEngine struct {
	healthy bool
	err     error
	indexed []model.Profile
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) SearchProviders(text string, limit int) ([]model.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Profile{{ID: "from-engine", Role: model.RoleProvider}}, nil
}

func (f *fakeEngine) IndexProviders(ps []model.Profile) error {
	f.indexed = append(f.indexed, ps...)
	return nil
}

type fakeStore struct {
	lastQuery string
	lastLimit int
}

func (f *fakeStore) SearchProfiles(_ context.Context, role model.Role, q string, limit int) ([]model.Profile, error) {
	f.lastQuery, f.lastLimit = q, limit
	return []model.Profile{{ID: "from-db", Role: role}}, nil
}

func (f *fakeStore) ProfilesByRole(_ context.Context, role model.Role) ([]model.Profile, error) {
	return []model.Profile{{ID: "d1", Role: role}, {ID: "d2", Role: role}}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSearchUsesHealthyEngine(t *testing.T) {
	s := NewService(&fakeEngine{healthy: true}, &fakeStore{}, quiet())
	got, err := s.SearchProviders(context.Background(), "cardio", 5)
	if err != nil || len(got) != 1 || got[0].ID != "from-engine" {
		t.Fatalf("got %v err %v", got, err)
	}
}

func TestSearchFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		engine Engine
	}{
		{"no engine", nil},
		{"unhealthy", &fakeEngine{healthy: false}},
		{"engine error", &fakeEngine{healthy: true, err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			s := NewService(tt.engine, st, quiet())
			got, err := s.SearchProviders(context.Background(), "  gp ", 0)
			if err != nil || got[0].ID != "from-db" {
				t.Fatalf("got %v err %v", got, err)
			}
			if st.lastQuery != "gp" || st.lastLimit != defaultLimit {
				t.Errorf("query %q limit %d", st.lastQuery, st.lastLimit)
			}
		})
	}
}

func TestSearchCapsLimit(t *testing.T) {
	st := &fakeStore{}
	NewService(nil, st, quiet()).SearchProviders(context.Background(), "", 10_000)
	if st.lastLimit != maxLimit {
		t.Errorf("limit = %d", st.lastLimit)
	}
}

func TestReindex(t *testing.T) {
	eng := &fakeEngine{healthy: true}
	if err := NewService(eng, &fakeStore{}, quiet()).Reindex(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(eng.indexed) != 2 {
		t.Errorf("indexed %d", len(eng.indexed))
	}
}

func TestDecodeString(t *testing.T) {
	hit := meili.Hit{
		"displayName": json.RawMessage(`"Dana Cole"`),
		"rank":        json.RawMessage(`3`),
	}
	if got := decodeString(hit, "displayName"); got != "Dana Cole" {
		t.Errorf("displayName = %q", got)
	}
	if got := decodeString(hit, "rank"); got != "" {
		t.Errorf("non-string = %q", got)
	}
	if got := decodeString(hit, "missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
}
