package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, ok, failing)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, failing.runs)
	require.Equal(t, 1, lock.released)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: ReconcileJobName}
	reg := prometheus.NewRegistry()
	service := newTestService(t, &fakeLock{held: true}, reg, job)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Zero(t, job.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range families {
		if mf.GetName() != "clubpay_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == metrics.JobSkipped {
					skipped += m.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, float64(1), skipped)
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})})
	require.Error(t, err)
}

type panicJob struct{}

func (panicJob) Name() string { return "panics" }

func (panicJob) Run(context.Context) error { panic("nil map") }

type deadlineJob struct {
	hadDeadline bool
}

func (d *deadlineJob) Name() string { return "deadline" }

func (d *deadlineJob) Run(ctx context.Context) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func TestRunOnceSurvivesPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, panicJob{}, after)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Equal(t, 1, after.runs)
	require.Equal(t, 1, lock.released)
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	job := &deadlineJob{}
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}}),
		Registry:   NewRegistry(job),
		Lock:       &fakeLock{},
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.True(t, job.hadDeadline)
}
