// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ztoken-ledger/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	CommitsTotal      *prometheus.CounterVec
	HoldingsConsumed  prometheus.Counter
	HoldingsProduced  prometheus.Counter
	CommitFanIn       prometheus.Histogram
	ConflictRetries   prometheus.Counter
	ObserverFailures  *prometheus.CounterVec
	LastCommitSeconds prometheus.Gauge

	// Engine metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	// Feed metrics
	FeedSubscribers     prometheus.Gauge
	FeedMessagesDropped prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "ztoken"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commits_total",
			Help:      "Total number of committed consume+produce sets by kind",
		}, []string{"kind"}),
		HoldingsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "holdings_consumed_total",
			Help:      "Total number of holdings consumed",
		}),
		HoldingsProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "holdings_produced_total",
			Help:      "Total number of holdings produced",
		}),
		CommitFanIn: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commit_fan_in",
			Help:      "Number of holdings consumed per commit",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "conflict_retries_total",
			Help:      "Total number of selections retried after a commit conflict",
		}),
		ObserverFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "observer_failures_total",
			Help:      "Total number of commit observer failures by observer",
		}, []string{"observer"}),
		LastCommitSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the most recent commit",
		}),

		// Engine metrics
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of engine operations by operation and result",
		}, []string{"operation", "result"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_latency_seconds",
			Help:      "Engine operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Feed metrics
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of websocket feed subscribers",
		}),
		FeedMessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_dropped_total",
			Help:      "Total number of feed messages dropped for slow subscribers",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// OnCommit records a committed change. It satisfies ledger.CommitObserver.
func (m *Metrics) OnCommit(_ context.Context, c *domain.Commit) error {
	m.CommitsTotal.WithLabelValues(string(c.Kind)).Inc()
	m.HoldingsConsumed.Add(float64(len(c.Consumed)))
	m.HoldingsProduced.Add(float64(len(c.Produced)))
	m.CommitFanIn.Observe(float64(c.ConsumedCount()))
	m.LastCommitSeconds.Set(float64(c.CreatedAt) / 1000)
	return nil
}

// ErrorClass maps an error to a low-cardinality metric label.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrIssuerPolicyViolation):
		return "issuer_policy"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "internal"
	}
}

// RecordOperation records an engine operation outcome and latency.
func RecordOperation(operation string, seconds float64, err error) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, ErrorClass(err)).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordConflictRetry increments the commit conflict retry counter.
func RecordConflictRetry() {
	DefaultMetrics.ConflictRetries.Inc()
}

// RecordObserverFailure increments the observer failure counter.
func RecordObserverFailure(observer string) {
	DefaultMetrics.ObserverFailures.WithLabelValues(observer).Inc()
}

// UpdateFeedSubscribers sets the feed subscriber gauge.
func UpdateFeedSubscribers(n int) {
	DefaultMetrics.FeedSubscribers.Set(float64(n))
}

// RecordFeedDrop increments the dropped feed message counter.
func RecordFeedDrop() {
	DefaultMetrics.FeedMessagesDropped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
