package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"campus-care-api/internal/model"
)

const idxProviders = "care_providers"

type providerDoc struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	AvatarURL      string `json:"avatarUrl"`
}

// Meili indexes providers in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     *slog.Logger
}

// NewMeili starts a health monitor. An unreachable server is not an error;
// callers check Healthy and fall back.
func NewMeili(url, apiKey string, log *slog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		log:    log,
	}
	if _, err := m.client.Health(); err != nil {
		log.Warn("search: meilisearch unavailable", "url", url, "error", err)
	} else {
		m.healthy.Store(true)
		m.configure()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxProviders, PrimaryKey: "id"}); err != nil {
		m.log.Debug("search: create index (may already exist)", "index", idxProviders, "error", err)
	}
	searchable := []string{"displayName", "specialization", "email"}
	if _, err := m.client.Index(idxProviders).UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("search: update searchable attributes", "index", idxProviders, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.log.Info("search: meilisearch recovered")
				m.configure()
			}
		}
	}
}

func (m *Meili) Close() { close(m.done) }

func (m *Meili) Healthy() bool { return m.healthy.Load() }

func (m *Meili) SearchProviders(text string, limit int) ([]model.Profile, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	resp, err := m.client.Index(idxProviders).Search(text, &meili.SearchRequest{Limit: int64(limit)})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	out := make([]model.Profile, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		out = append(out, model.Profile{
			ID:             decodeString(hit, "id"),
			DisplayName:    decodeString(hit, "displayName"),
			Email:          decodeString(hit, "email"),
			Specialization: decodeString(hit, "specialization"),
			AvatarURL:      decodeString(hit, "avatarUrl"),
			Role:           model.RoleProvider,
		})
	}
	return out, nil
}

func (m *Meili) IndexProviders(ps []model.Profile) error {
	if len(ps) == 0 {
		return nil
	}
	docs := make([]providerDoc, len(ps))
	for i, p := range ps {
		docs[i] = toDoc(p)
	}
	_, err := m.client.Index(idxProviders).AddDocuments(docs, nil)
	return err
}

func toDoc(p model.Profile) providerDoc {
	return providerDoc{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Email:          p.Email,
		Specialization: p.Specialization,
		AvatarURL:      p.AvatarURL,
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
