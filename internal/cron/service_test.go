package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("nil map write")
	}
	return t.err
}

type recordingJobMetrics struct {
	successes []string
	failures  []string
	observed  int
}

func (r *recordingJobMetrics) ObserveDuration(string, time.Duration) { r.observed++ }
func (r *recordingJobMetrics) IncSuccess(job string)                 { r.successes = append(r.successes, job) }
func (r *recordingJobMetrics) IncFailure(job string)                 { r.failures = append(r.failures, job) }

func newTestService(t *testing.T, lock Lock, jobMetrics jobMetrics, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "payment-sweep"}
	failing := &testJob{name: "outbox-retention", err: errors.New("boom")}
	lock := &fakeLock{}
	jobMetrics := &recordingJobMetrics{}
	service := newTestService(t, lock, jobMetrics, failing, ok)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released once")
	}
	if jobMetrics.observed != 2 || len(jobMetrics.successes) != 1 || len(jobMetrics.failures) != 1 {
		t.Fatalf("unexpected metrics %+v", jobMetrics)
	}
	if jobMetrics.failures[0] != "outbox-retention" {
		t.Fatalf("unexpected failure label %q", jobMetrics.failures[0])
	}
}

func TestRunOnceSurvivesPanickingJob(t *testing.T) {
	panicking := &testJob{name: "payment-sweep", panic: true}
	after := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	jobMetrics := &recordingJobMetrics{}
	service := newTestService(t, lock, jobMetrics, panicking, after)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("expected job after the panic to run")
	}
	if len(jobMetrics.failures) != 1 || jobMetrics.failures[0] != "payment-sweep" {
		t.Fatalf("expected panic counted as failure, got %+v", jobMetrics.failures)
	}
	if lock.held {
		t.Fatalf("expected lock released")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "payment-sweep"}
	service := newTestService(t, &fakeLock{}, nil, job)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected one immediate cycle, got %d", job.runs)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "payment-sweep"}
	service := newTestService(t, &fakeLock{held: true}, nil, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
}

func TestRunOnceReportsLockErrors(t *testing.T) {
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, nil, &testJob{name: "x"})
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})}); err == nil {
		t.Fatalf("expected lock error")
	}
}
