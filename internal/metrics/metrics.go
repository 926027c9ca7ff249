// Package metrics exposes Prometheus counters for claims, lifecycle
// transitions, event reconciliation and payout dispatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snow_market"

// Collector holds the platform metrics
type Collector struct {
	claims       *prometheus.CounterVec
	claimLatency prometheus.Histogram
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	registry     prometheus.Gatherer
}

// NewCollector creates a collector registered on reg
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}),
		claimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_duration_seconds",
			Help:      "Claim transaction latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Successful job lifecycle transitions by action",
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_reconciled_total",
			Help:      "Provider events handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_dispatched_total",
			Help:      "Payout transfers by result",
		}, []string{"result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Provider webhooks by result",
		}, []string{"result"}),
		registry: reg,
	}

	reg.MustRegister(
		c.claims,
		c.claimLatency,
		c.transitions,
		c.events,
		c.payouts,
		c.webhooks,
	)

	return c
}

// ObserveClaim records a claim attempt and its latency. The outcome label is
// the error kind, or "claimed" on success.
func (c *Collector) ObserveClaim(err error, elapsed time.Duration) {
	outcome := "claimed"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	c.claims.WithLabelValues(outcome).Inc()
	c.claimLatency.Observe(elapsed.Seconds())
}

// RecordTransition counts a successful lifecycle transition
func (c *Collector) RecordTransition(action string) {
	c.transitions.WithLabelValues(action).Inc()
}

// RecordEvent counts a reconciled provider event
func (c *Collector) RecordEvent(kind, outcome string) {
	c.events.WithLabelValues(kind, outcome).Inc()
}

// RecordPayouts adds one dispatch run's counts
func (c *Collector) RecordPayouts(dispatched, failed int) {
	c.payouts.WithLabelValues("dispatched").Add(float64(dispatched))
	c.payouts.WithLabelValues("failed").Add(float64(failed))
}

// RecordWebhook counts a received webhook
func (c *Collector) RecordWebhook(result string) {
	c.webhooks.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
