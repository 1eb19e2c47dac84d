// Package metrics exposes Prometheus instrumentation for the report lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bountyboard/bounty-server/internal/models"
)

// Lifecycle counts submissions, transitions and payouts
type Lifecycle struct {
	Submissions *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	BountyPaid  prometheus.Counter
	Failures    *prometheus.CounterVec
}

// New registers the lifecycle collectors on reg
func New(reg prometheus.Registerer) *Lifecycle {
	factory := promauto.With(reg)
	return &Lifecycle{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bounty_reports_submitted_total",
			Help: "The total number of reports submitted",
		}, []string{"severity"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bounty_report_transitions_total",
			Help: "The total number of applied report status transitions",
		}, []string{"from", "to"}),
		BountyPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "bounty_paid_total",
			Help: "The total bounty amount awarded to researchers",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bounty_operation_failures_total",
			Help: "The total number of rejected lifecycle operations",
		}, []string{"operation", "reason"}),
	}
}

// Submitted records a new report
func (l *Lifecycle) Submitted(sev models.Severity) {
	if l == nil {
		return
	}
	l.Submissions.WithLabelValues(string(sev)).Inc()
}

// Transitioned records an applied transition and its reward
func (l *Lifecycle) Transitioned(from, to models.Status, reward int64) {
	if l == nil {
		return
	}
	l.Transitions.WithLabelValues(string(from), string(to)).Inc()
	if reward > 0 {
		l.BountyPaid.Add(float64(reward))
	}
}

// Failed records a rejected operation
func (l *Lifecycle) Failed(operation, reason string) {
	if l == nil {
		return
	}
	l.Failures.WithLabelValues(operation, reason).Inc()
}
