// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scanner. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Scan metrics
	CyclesTotal           *prometheus.CounterVec
	CycleDuration         prometheus.Histogram
	OpportunitiesTotal    *prometheus.CounterVec
	LastSuccessfulCycle   prometheus.Gauge
	LastOpportunityProfit *prometheus.GaugeVec

	// Upstream metrics
	QuotesTotal     *prometheus.CounterVec
	QuoteLatency    *prometheus.HistogramVec
	PriceFetchTotal *prometheus.CounterVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge
	FeedDropped     prometheus.Counter

	// Archive metrics
	ArchivedTotal prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on reg. A nil reg uses a
// fresh registry so repeated construction in tests does not collide.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "chainarb"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles by outcome",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		OpportunitiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "opportunities_total",
			Help:      "Total number of published opportunities by chain",
		}, []string{"chain_id"}),
		LastSuccessfulCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last completed scan cycle",
		}),
		LastOpportunityProfit: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_opportunity_profit_usd",
			Help:      "Expected profit in USD of the latest opportunity per chain",
		}, []string{"chain_id"}),

		QuotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "quotes_total",
			Help:      "Total number of quote requests by chain, leg and outcome",
		}, []string{"chain_id", "leg", "status"}),
		QuoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "quote_latency_seconds",
			Help:      "Quote request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain_id", "leg"}),
		PriceFetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "price_fetch_total",
			Help:      "Total number of upstream USD price refreshes by outcome",
		}, []string{"status"}),

		FeedSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of feed subscribers",
		}),
		FeedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_batches_total",
			Help:      "Total number of batches dropped for slow subscribers",
		}),

		ArchivedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "opportunities_archived_total",
			Help:      "Total number of opportunities moved to cold storage",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordCycle records the outcome of one scan cycle.
func (m *Metrics) RecordCycle(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
	if status == "ok" {
		m.LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordOpportunity records one published opportunity.
func (m *Metrics) RecordOpportunity(chainID int64, profitUSD float64) {
	if m == nil {
		return
	}
	id := strconv.FormatInt(chainID, 10)
	m.OpportunitiesTotal.WithLabelValues(id).Inc()
	m.LastOpportunityProfit.WithLabelValues(id).Set(profitUSD)
}

// RecordQuote records one quote request.
func (m *Metrics) RecordQuote(chainID int64, leg string, d time.Duration, err error) {
	if m == nil {
		return
	}
	id := strconv.FormatInt(chainID, 10)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QuotesTotal.WithLabelValues(id, leg, status).Inc()
	m.QuoteLatency.WithLabelValues(id, leg).Observe(d.Seconds())
}

// RecordPriceFetch records an upstream USD price refresh.
func (m *Metrics) RecordPriceFetch(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PriceFetchTotal.WithLabelValues("error").Inc()
		return
	}
	m.PriceFetchTotal.WithLabelValues("ok").Inc()
}

// SetSubscribers updates the feed subscriber gauge.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.FeedSubscribers.Set(float64(n))
}

// RecordDropped counts a batch dropped for a slow subscriber.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.FeedDropped.Inc()
}

// RecordArchived counts opportunities moved to cold storage.
func (m *Metrics) RecordArchived(n int64) {
	if m == nil {
		return
	}
	m.ArchivedTotal.Add(float64(n))
}
