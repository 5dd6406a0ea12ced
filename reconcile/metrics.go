package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sync outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	decisions    *prometheus.CounterVec
	leaveWrites  *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	runDuration  prometheus.Histogram
}

// NewMetrics registers the sync metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payrun_sync_decisions_total",
			Help: "Timesheet sync decisions by status",
		}, []string{"status"}),
		leaveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payrun_leave_writes_total",
			Help: "Leave application writes by outcome",
		}, []string{"outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrun_external_call_seconds",
			Help:    "Latency of calls to the external payroll system",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"op"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payrun_sync_run_seconds",
			Help:    "Duration of a whole sync run",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.decisions, m.leaveWrites, m.callDuration, m.runDuration)
	return m
}

func (m *Metrics) decision(s Status) {
	if m != nil {
		m.decisions.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) leave(outcome string) {
	if m != nil {
		m.leaveWrites.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) call(op string, start time.Time) {
	if m != nil {
		m.callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) run(start time.Time) {
	if m != nil {
		m.runDuration.Observe(time.Since(start).Seconds())
	}
}
