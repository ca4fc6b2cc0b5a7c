package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
	extends  int
	loseAt   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) (bool, error) {
	f.extends++
	if f.loseAt > 0 && f.extends >= f.loseAt {
		return false, nil
	}
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	every time.Duration
	panic bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Every() time.Duration { return t.every }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("nil map write")
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "outbox-retention"}
	failing := &testJob{name: "qr-session-sweep", err: errors.New("boom")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, failing, ok)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunOnceSkipsWhenAnotherReplicaHoldsTheLock(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 0, job.runs)
}

func TestRunOnceStopsWhenLockIsLost(t *testing.T) {
	first := &testJob{name: "qr-session-sweep"}
	second := &testJob{name: "outbox-retention"}
	third := &testJob{name: "payment-session-cleanup"}
	lock := &fakeLock{loseAt: 2}
	svc := newTestService(t, lock, first, second, third)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, 0, third.runs, "jobs after a lost lease belong to the new holder")
	assert.Equal(t, 2, lock.extends)
}

func TestRunOnceHonoursJobCadence(t *testing.T) {
	fast := &testJob{name: "qr-session-sweep"}
	daily := &testJob{name: "outbox-retention", every: 24 * time.Hour}
	lock := &fakeLock{}
	svc := newTestService(t, lock, fast, daily)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	require.NoError(t, svc.RunOnce(context.Background()))
	clock = clock.Add(time.Hour)
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 2, fast.runs)
	assert.Equal(t, 1, daily.runs, "daily job is not due after an hour")
	assert.Equal(t, 1, lock.extends, "only jobs that run extend the lease")

	clock = clock.Add(24 * time.Hour)
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 2, daily.runs)
}

func TestRunOnceSurvivesPanickingJob(t *testing.T) {
	broken := &testJob{name: "qr-session-sweep", panic: true}
	after := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, broken, after)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.released)
}
