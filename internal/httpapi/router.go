// Package httpapi is the HTTP edge: health, metrics, the WebSocket gateway
// and the grpc-web bridge share one listener.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"campus-care-api/internal/handler"
	"campus-care-api/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store    Pinger
	Gatherer prometheus.Gatherer
	Bridge   http.Handler
	Gateway  http.Handler
	Log      *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", health(d.Store, d.Log))
	r.Handle("/metrics", metrics.Handler(d.Gatherer))
	r.Handle("/ws", d.Gateway)
	r.Handle("/"+handler.ServiceName+"/*", d.Bridge)

	return r
}

func health(st Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		code, state := http.StatusOK, "ok"
		if err := st.Ping(ctx); err != nil {
			log.Warn("health: store unreachable", "error", err)
			code, state = http.StatusServiceUnavailable, "unavailable"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": state})
	}
}
