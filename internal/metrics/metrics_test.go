package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func find(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.MessageAppended()
	c.MessageAppended()
	c.AppointmentDecided("approved")
	c.NotificationEmitted("new_message")

	if v := find(t, reg, "care_messages_appended_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("messages appended = %v, want 2", v)
	}
	dec := find(t, reg, "care_appointment_decisions_total").GetMetric()[0]
	if dec.GetLabel()[0].GetValue() != "approved" || dec.GetCounter().GetValue() != 1 {
		t.Errorf("decision metric: %v", dec)
	}
}

func TestSubscriptionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	done1 := c.SubscriptionOpened("messages")
	done2 := c.SubscriptionOpened("messages")
	done1()

	if v := find(t, reg, "care_live_subscriptions").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("gauge = %v, want 1", v)
	}
	done2()
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.MessageAppended()
	c.ObserveRPC("/m", "OK", time.Millisecond)
	c.SubscriptionOpened("x")()
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AppointmentCreated()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "care_appointments_created_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
