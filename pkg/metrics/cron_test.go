package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsRunsAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncSkipped(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, outcome := range []string{JobSucceeded, JobFailed, JobSkipped} {
		if got, err := fetchCounterValue(mfs, "clubpay_job_runs_total", "outcome", outcome); err != nil {
			t.Fatalf("fetch %s: %v", outcome, err)
		} else if got != 1 {
			t.Fatalf("expected %s=1, got %f", outcome, got)
		}
	}

	if mf := findMetricFamily(mfs, "clubpay_job_last_success_timestamp_seconds"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Fatalf("expected last success timestamp to be set")
	}

	if got, err := fetchHistogramSum(mfs, "clubpay_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestWebhookMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("invoice.paid", OutcomeProcessed, 10*time.Millisecond)
	m.Observe("invoice.paid", OutcomeDuplicate, time.Millisecond)
	m.Observe("invoice.paid", OutcomeDuplicate, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "clubpay_stripe_webhook_events_total", "outcome", OutcomeDuplicate); err != nil {
		t.Fatalf("fetch duplicate: %v", err)
	} else if got != 2 {
		t.Fatalf("expected duplicate=2, got %f", got)
	}
}

func TestReconcileMetricsAccumulate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconcileMetrics(reg)
	m.ObserveRun(ReconcileCounts{Created: 3, SkippedDuplicate: 2}, false)
	m.ObserveRun(ReconcileCounts{Created: 1}, true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "clubpay_reconcile_charges_total", "outcome", "created"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 4 {
		t.Fatalf("expected created=4, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "clubpay_reconcile_runs_total", "state", "interrupted"); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected one interrupted run, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var cron *CronJobMetrics
	cron.IncSuccess("job")
	NewWebhookMetrics(nil).Observe("x", OutcomeFailed, 0)
	NewReconcileMetrics(nil).ObserveRun(ReconcileCounts{Created: 1}, false)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
