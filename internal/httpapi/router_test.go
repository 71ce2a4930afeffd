package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"campus-care-api/internal/metrics"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func stub(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, name)
	})
}

func newRouter(pingErr error) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).MessageAppended()
	return NewRouter(Deps{
		Store:    fakePinger{err: pingErr},
		Gatherer: reg,
		Bridge:   stub("bridge"),
		Gateway:  stub("gateway"),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func get(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	if rec := get(newRouter(nil), http.MethodGet, "/healthz"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthy: %d %s", rec.Code, rec.Body.String())
	}
	rec := get(newRouter(errors.New("down")), http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "unavailable") {
		t.Errorf("unhealthy: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoutes(t *testing.T) {
	r := newRouter(nil)

	tests := []struct {
		method, path string
		wantCode     int
		wantBody     string
	}{
		{http.MethodGet, "/metrics", http.StatusOK, "care_messages_appended_total 1"},
		{http.MethodGet, "/ws", http.StatusOK, "gateway"},
		{http.MethodPost, "/care.v1.CareService/SignIn", http.StatusOK, "bridge"},
		{http.MethodOptions, "/care.v1.CareService/WatchChannels", http.StatusOK, "bridge"},
		{http.MethodGet, "/elsewhere", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := get(r, tt.method, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}
