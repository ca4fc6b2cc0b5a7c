package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultRetentionEvery  = time.Hour
	outboxDeleteBatch      = 500
	outboxMaxBatches       = 20
)

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   outboxPurger
	Retention    time.Duration
	DeadLetters  dlqPurger
	DLQRetention time.Duration
	// Every is how often the purge runs; the cycle interval is usually much shorter.
	Every time.Duration
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type dlqPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows older than the retention
// window, and dead letters older than their own, longer window. Unpublished
// rows are never touched. DeadLetters is optional.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = defaultDLQRetention
	}
	every := params.Every
	if every <= 0 {
		every = defaultRetentionEvery
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    retention,
		dlqRetention: dlqRetention,
		every:        every,
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxPurger
	dlq          dlqPurger
	retention    time.Duration
	dlqRetention time.Duration
	every        time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Every() time.Duration { return j.every }

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	deleted, err := drain(ctx, cutoff, j.repo.DeletePublishedBefore)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	fields := map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}

	if j.dlq != nil {
		dlqCutoff := now.Add(-j.dlqRetention)
		dead, err := drain(ctx, dlqCutoff, j.dlq.DeleteBefore)
		if err != nil {
			return fmt.Errorf("outbox dlq retention: %w", err)
		}
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_rows_deleted"] = dead
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox.retention_complete")
	return nil
}

// drain deletes in batches until a short batch or the batch cap.
func drain(ctx context.Context, cutoff time.Time, del func(context.Context, time.Time, int) (int64, error)) (int64, error) {
	var total int64
	for batch := 0; batch < outboxMaxBatches; batch++ {
		rows, err := del(ctx, cutoff, outboxDeleteBatch)
		if err != nil {
			return total, err
		}
		total += rows
		if rows < outboxDeleteBatch {
			break
		}
	}
	return total, nil
}
