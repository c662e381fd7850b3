package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters for the dialogue pipeline.
type EngineMetrics struct {
	messagesTotal    *prometheus.CounterVec
	intentsTotal     *prometheus.CounterVec
	goalsCompleted   *prometheus.CounterVec
	staleGoalsPruned prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "engine",
			Name:      "messages_total",
			Help:      "Total inbound messages processed",
		}, []string{"status"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "engine",
			Name:      "intents_total",
			Help:      "Total intents detected",
		}, []string{"goal_type"}),
		goalsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "engine",
			Name:      "goals_completed_total",
			Help:      "Goals that reached slot completeness",
		}, []string{"goal_type"}),
		staleGoalsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "engine",
			Name:      "stale_goals_pruned_total",
			Help:      "Goals dropped after the session timeout",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.intentsTotal, m.goalsCompleted, m.staleGoalsPruned)
	return m
}

func (m *EngineMetrics) ObserveMessage(status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveIntent(goalType string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(goalType).Inc()
}

func (m *EngineMetrics) ObserveGoalCompleted(goalType string) {
	if m == nil {
		return
	}
	m.goalsCompleted.WithLabelValues(goalType).Inc()
}

func (m *EngineMetrics) ObserveStaleGoalPruned() {
	if m == nil {
		return
	}
	m.staleGoalsPruned.Inc()
}

// BookingMetrics exposes counters/histograms for the availability engine.
type BookingMetrics struct {
	commitsTotal        *prometheus.CounterVec
	commitLatency       prometheus.Histogram
	reconciliationTotal prometheus.Counter
	availabilityQueries prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Total booking commit attempts",
		}, []string{"status"}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "commit_latency_seconds",
			Help:      "Latency of booking commits",
			Buckets:   prometheus.DefBuckets,
		}),
		reconciliationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "reconciliation_required_total",
			Help:      "Commits whose availability recompute failed after the write",
		}),
		availabilityQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "availability_queries_total",
			Help:      "Total availability window queries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commitsTotal, m.commitLatency, m.reconciliationTotal, m.availabilityQueries)
	return m
}

func (m *BookingMetrics) ObserveCommit(status string, seconds float64) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(status).Inc()
	m.commitLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveReconciliationRequired() {
	if m == nil {
		return
	}
	m.reconciliationTotal.Inc()
}

func (m *BookingMetrics) ObserveAvailabilityQuery() {
	if m == nil {
		return
	}
	m.availabilityQueries.Inc()
}
