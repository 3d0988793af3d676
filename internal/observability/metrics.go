// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrow-sale/internal/domain"
)

// Metrics holds the Prometheus metrics of a sale service.
// It observes engine operations and consumes committed sale events.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Event metrics
	EventsTotal       *prometheus.CounterVec
	CurrencyPledged   prometheus.Counter
	TokensCredited    prometheus.Counter
	TokensClaimed     prometheus.Counter
	CurrencyRefunded  prometheus.Counter
	CurrencyWithdrawn prometheus.Counter

	// Sale state gauges
	SaleTotal  prometheus.Gauge
	SaleRate   prometheus.Gauge
	SaleStatus prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "escrow_sale"
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of sale operations by result code",
		}, []string{"op", "code"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Sale operation latency including the ledger transaction",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "committed_total",
			Help:      "Total number of committed sale events by kind",
		}, []string{"kind"}),
		CurrencyPledged:   counter("events", "currency_pledged_total", "Settlement currency base units pledged"),
		TokensCredited:    counter("events", "tokens_credited_total", "Token base units credited to contributors"),
		TokensClaimed:     counter("events", "tokens_claimed_total", "Token base units paid out by claims"),
		CurrencyRefunded:  counter("events", "currency_refunded_total", "Settlement currency base units refunded"),
		CurrencyWithdrawn: counter("events", "currency_withdrawn_total", "Settlement currency base units withdrawn by the creator"),

		SaleTotal:  gauge("total", "Aggregate settlement currency pledged"),
		SaleRate:   gauge("rate", "Current rate in token base units per 1e6 currency units"),
		SaleStatus: gauge("status", "Sale status: 0 open, 1 success, 2 expired"),
	}
}

// ObserveOperation records one operation outcome.
func (m *Metrics) ObserveOperation(op, code string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op, code).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Publish updates counters and gauges from a committed event.
func (m *Metrics) Publish(_ context.Context, e domain.SaleEvent) error {
	m.EventsTotal.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case domain.EventContributed:
		m.CurrencyPledged.Add(float64(e.Amount))
		m.TokensCredited.Add(float64(e.Tokens))
	case domain.EventClaimed:
		m.TokensClaimed.Add(float64(e.Amount))
	case domain.EventRefunded:
		m.CurrencyRefunded.Add(float64(e.Amount))
	case domain.EventWithdrawn:
		m.CurrencyWithdrawn.Add(float64(e.Amount))
	}

	m.SaleTotal.Set(float64(e.Total))
	m.SaleRate.Set(float64(e.Rate))
	m.SaleStatus.Set(float64(e.Status))
	return nil
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
