package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

type fakeOutboxPurger struct {
	batches []int64
	cutoffs []time.Time
	err     error
	calls   int
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	n := int64(0)
	if f.calls < len(f.batches) {
		n = f.batches[f.calls]
	}
	f.calls++
	return n, nil
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxPurger) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDeletesInBatchesUntilDrained(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{batches: []int64{outboxDeleteBatch, outboxDeleteBatch, 12}}
	job := newOutboxRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", repo.calls)
	}
	if want := now.Add(-defaultOutboxRetention); !repo.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoffs[0])
	}
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxPurger{err: errors.New("boom")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeDLQPurger struct {
	cutoffs []time.Time
	err     error
}

func (f *fakeDLQPurger) DeleteBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func TestOutboxRetentionAlsoPurgesOldDeadLetters(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	dlq := &fakeDLQPurger{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		Repository:  &fakeOutboxPurger{},
		DeadLetters: dlq,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dlq.cutoffs) != 1 {
		t.Fatalf("expected one dlq batch, got %d", len(dlq.cutoffs))
	}
	if want := now.Add(-defaultDLQRetention); !dlq.cutoffs[0].Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, dlq.cutoffs[0])
	}
}

func TestOutboxRetentionReportsDeadLetterFailure(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		Repository:  &fakeOutboxPurger{},
		DeadLetters: &fakeDLQPurger{err: errors.New("locked")},
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected dlq error")
	}
}

func TestOutboxRetentionRunsHourlyByDefault(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxPurger{})
	var periodic Periodic = job
	if periodic.Every() != time.Hour {
		t.Fatalf("expected hourly cadence, got %s", periodic.Every())
	}
}
