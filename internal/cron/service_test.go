package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
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
	f.releases++
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

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	sweep := &testJob{name: enrollmentExpirationJobName, err: errors.New("revoke failed")}
	cleanup := &testJob{name: "notification-cleanup"}
	lock := &fakeLock{}
	service := newTestService(t, lock, sweep, cleanup)

	report, err := service.runCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if sweep.runs != 1 || cleanup.runs != 1 {
		t.Fatalf("expected each job once, got sweep=%d cleanup=%d", sweep.runs, cleanup.runs)
	}
	if len(report.Ran) != 2 || len(report.Failed) != 1 || report.Failed[0] != enrollmentExpirationJobName {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.RunID == "" {
		t.Fatalf("expected run id")
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestServiceRunCycleSkipsWhileAnotherWorkerHoldsLock(t *testing.T) {
	sweep := &testJob{name: enrollmentExpirationJobName}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, sweep)

	report, err := service.runCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !report.Skipped || sweep.runs != 0 {
		t.Fatalf("expected skipped cycle, got %+v runs=%d", report, sweep.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("must not release a lock it never acquired")
	}
}

func TestNewServiceDefaultsToDailySweep(t *testing.T) {
	service := newTestService(t, &fakeLock{})
	if service.Interval() != defaultInterval {
		t.Fatalf("expected %s, got %s", defaultInterval, service.Interval())
	}
}
