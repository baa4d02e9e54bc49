package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileCounts mirrors the counters of one reconciliation run.
type ReconcileCounts struct {
	Processed          int
	Created            int
	SkippedDuplicate   int
	SkippedSelfService int
	SkippedNoMember    int
	SkippedFailed      int
	Errors             int
}

// ReconcileMetrics exports cumulative historical-import counters.
type ReconcileMetrics struct {
	runs    *prometheus.CounterVec
	charges *prometheus.CounterVec
	errors  prometheus.Counter
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation runs by completion state.",
	}, []string{"state"})
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_charges_total",
		Help:      "Stripe charges seen by reconciliation, by outcome.",
	}, []string{"outcome"})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_member_errors_total",
		Help:      "Per-member failures recorded during reconciliation.",
	})
	reg.MustRegister(runs, charges, errs)
	return &ReconcileMetrics{runs: runs, charges: charges, errors: errs}
}

// ObserveRun adds the run's counters to the exported totals.
func (r *ReconcileMetrics) ObserveRun(counts ReconcileCounts, interrupted bool) {
	if r == nil || r.runs == nil {
		return
	}
	state := "completed"
	if interrupted {
		state = "interrupted"
	}
	r.runs.WithLabelValues(state).Inc()
	r.charges.WithLabelValues("created").Add(float64(counts.Created))
	r.charges.WithLabelValues("skipped_duplicate").Add(float64(counts.SkippedDuplicate))
	r.charges.WithLabelValues("skipped_self_service").Add(float64(counts.SkippedSelfService))
	r.charges.WithLabelValues("skipped_no_member").Add(float64(counts.SkippedNoMember))
	r.charges.WithLabelValues("skipped_failed").Add(float64(counts.SkippedFailed))
	r.errors.Add(float64(counts.Errors))
}
