// Package metrics exposes Prometheus counters for the care service.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	messagesAppended     prometheus.Counter
	appointmentsCreated  prometheus.Counter
	appointmentDecisions *prometheus.CounterVec
	notificationsEmitted *prometheus.CounterVec
	notificationsSkipped prometheus.Counter
	outboxFailures       prometheus.Counter
	outboxDiscarded      prometheus.Counter
	liveSubscriptions    *prometheus.GaugeVec
	rpcDuration          *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_messages_appended_total",
			Help: "Messages appended to channels.",
		}),
		appointmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_appointments_created_total",
			Help: "Appointment requests created.",
		}),
		appointmentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_appointment_decisions_total",
			Help: "Appointment decisions by outcome.",
		}, []string{"outcome"}),
		notificationsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_notifications_emitted_total",
			Help: "Notifications written by fan-out, by type.",
		}, []string{"type"}),
		notificationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_notifications_suppressed_total",
			Help: "Message notifications suppressed because the recipient was viewing the channel.",
		}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_outbox_dispatch_failures_total",
			Help: "Outbox events whose fan-out failed and will be retried.",
		}),
		outboxDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_outbox_discarded_total",
			Help: "Outbox events dropped because they can never be delivered.",
		}),
		liveSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_live_subscriptions",
			Help: "Open live feeds by kind.",
		}, []string{"feed"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_rpc_duration_seconds",
			Help:    "RPC latency by method and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		c.messagesAppended,
		c.appointmentsCreated,
		c.appointmentDecisions,
		c.notificationsEmitted,
		c.notificationsSkipped,
		c.outboxFailures,
		c.outboxDiscarded,
		c.liveSubscriptions,
		c.rpcDuration,
	)
	return c
}

func (c *Collector) MessageAppended() {
	if c != nil {
		c.messagesAppended.Inc()
	}
}

func (c *Collector) AppointmentCreated() {
	if c != nil {
		c.appointmentsCreated.Inc()
	}
}

func (c *Collector) AppointmentDecided(outcome string) {
	if c != nil {
		c.appointmentDecisions.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) NotificationEmitted(typ string) {
	if c != nil {
		c.notificationsEmitted.WithLabelValues(typ).Inc()
	}
}

func (c *Collector) NotificationSuppressed() {
	if c != nil {
		c.notificationsSkipped.Inc()
	}
}

func (c *Collector) OutboxFailure() {
	if c != nil {
		c.outboxFailures.Inc()
	}
}

func (c *Collector) OutboxDiscarded() {
	if c != nil {
		c.outboxDiscarded.Inc()
	}
}

// SubscriptionOpened returns the matching close func.
func (c *Collector) SubscriptionOpened(feed string) func() {
	if c == nil {
		return func() {}
	}
	g := c.liveSubscriptions.WithLabelValues(feed)
	g.Inc()
	return g.Dec
}

func (c *Collector) ObserveRPC(method, code string, d time.Duration) {
	if c != nil {
		c.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
