package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// SaleSubmissionsTotal counts checkout attempts by payment method and result.
	SaleSubmissionsTotal *prometheus.CounterVec
	// SaleSubmissionLatency records sale submission latency in milliseconds.
	SaleSubmissionLatency *prometheus.HistogramVec
	// VoucherRedemptionsTotal counts voucher and deposit redemption outcomes.
	VoucherRedemptionsTotal *prometheus.CounterVec
	// HistoryPersistTotal counts history store writes by store and result.
	HistoryPersistTotal *prometheus.CounterVec
	// HistoryWritesSuperseded counts queued history writes replaced by a newer write for the same session.
	HistoryWritesSuperseded prometheus.Counter
	// ActiveSessions reports the number of open register sessions.
	ActiveSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and outcome.",
		}, []string{"operation", "result"}))
		SaleSubmissionsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_submissions_total",
			Help:      "Count of sale submissions by payment method and result.",
		}, []string{"method", "result"}))
		SaleSubmissionLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_submission_duration_ms",
			Help:      "Latency of sale submissions in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		VoucherRedemptionsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_redemptions_total",
			Help:      "Count of voucher and deposit receipt redemptions by type and result.",
		}, []string{"type", "result"}))
		HistoryPersistTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_persist_total",
			Help:      "Count of cart history persistence attempts by store and result.",
		}, []string{"store", "result"}))
		HistoryWritesSuperseded = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_superseded_total",
			Help:      "Number of queued history writes replaced by a newer write for the same session.",
		}))
		ActiveSessions = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_sessions_active",
			Help:      "Number of open register sessions.",
		}))
	})
}

// CountCartMutation increments CartMutationsTotal when domain metrics are registered.
func CountCartMutation(operation, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(operation, result).Inc()
	}
}

// CountRedemption increments VoucherRedemptionsTotal when domain metrics are registered.
func CountRedemption(kind, result string) {
	if VoucherRedemptionsTotal != nil {
		VoucherRedemptionsTotal.WithLabelValues(kind, result).Inc()
	}
}

// CountHistoryPersist increments HistoryPersistTotal when domain metrics are registered.
func CountHistoryPersist(store, result string) {
	if HistoryPersistTotal != nil {
		HistoryPersistTotal.WithLabelValues(store, result).Inc()
	}
}

// SetActiveSessions updates the ActiveSessions gauge when domain metrics are registered.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}
