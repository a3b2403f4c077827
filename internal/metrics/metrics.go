// Package metrics exposes Prometheus collectors for the economy services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omega-realm/economy/internal/models"
)

const namespace = "economy"

// Metrics groups every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	transfers      *prometheus.CounterVec
	transferVolume prometheus.Counter
	feesCollected  prometheus.Counter
	correlated     *prometheus.CounterVec
	purchases      prometheus.Counter
	adjustments    prometheus.Counter
	rewards        prometheus.Counter
	sessions       *prometheus.CounterVec
	sessionFlags   *prometheus.CounterVec
	bans           *prometheus.CounterVec
	storeConflicts *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	notifyFailures prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transfers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer attempts by outcome.",
		}, []string{"outcome"}),
		transferVolume: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_tokens_total",
			Help:      "Gross tokens moved by completed transfers.",
		}),
		feesCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_fees_total",
			Help:      "Platform fees charged on completed transfers.",
		}),
		correlated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_correlation_signals_total",
			Help:      "Completed transfers carrying a correlated-identity signal.",
		}, []string{"signal"}),
		purchases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Completed shop purchases.",
		}),
		adjustments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_adjustments_total",
			Help:      "Balance adjustments made by operators.",
		}),
		rewards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_tokens_total",
			Help:      "Tokens credited from play.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finalized_total",
			Help:      "Finalized play sessions by evaluation result.",
		}, []string{"flagged"}),
		sessionFlags: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_flags_total",
			Help:      "Anti-cheat flags raised by heuristic.",
		}, []string{"code"}),
		bans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_actions_total",
			Help:      "Ban state transitions by action.",
		}, []string{"action"}),
		storeConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Units of work aborted by a concurrent modification.",
		}, []string{"operation"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TransferCompleted records a committed transfer and its correlation signals.
func (m *Metrics) TransferCompleted(record *models.LedgerRecord) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues("completed").Inc()
	m.transferVolume.Add(float64(record.Amount))
	m.feesCollected.Add(float64(record.Fee))
	if record.SameDevice {
		m.correlated.WithLabelValues("same_device").Inc()
	}
	if record.SameAddress {
		m.correlated.WithLabelValues("same_address").Inc()
	}
}

// TransferRejected records a failed transfer by error code.
func (m *Metrics) TransferRejected(code string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(code).Inc()
}

func (m *Metrics) PurchaseCompleted() {
	if m == nil {
		return
	}
	m.purchases.Inc()
}

func (m *Metrics) AdminAdjusted() {
	if m == nil {
		return
	}
	m.adjustments.Inc()
}

// RewardCredited records tokens credited from play.
func (m *Metrics) RewardCredited(amount int64) {
	if m == nil {
		return
	}
	m.rewards.Add(float64(amount))
}

// SessionFinalized records the evaluation result of a closed session.
func (m *Metrics) SessionFinalized(flags models.Flags) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(strconv.FormatBool(len(flags) > 0)).Inc()
	for _, f := range flags {
		m.sessionFlags.WithLabelValues(string(f.Code)).Inc()
	}
}

// Moderation records a ban, unban or expiry.
func (m *Metrics) Moderation(action string) {
	if m == nil {
		return
	}
	m.bans.WithLabelValues(action).Inc()
}

// StoreConflict records a retryable abort.
func (m *Metrics) StoreConflict(operation string) {
	if m == nil {
		return
	}
	m.storeConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
