package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/internal/paymentsessions"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const (
	defaultSweepTimeout   = 300 * time.Second
	defaultSweepRetention = 72 * time.Hour
	defaultSweepBatch     = 100
)

type staleSessions interface {
	ListStale(ctx context.Context, query paymentsessions.StaleQuery) ([]models.PaymentSession, error)
	AbandonExpired(ctx context.Context, provider enums.PaymentProvider, createdBefore time.Time) (int64, error)
}

type sessionConfirmer interface {
	ConfirmPayment(ctx context.Context, input checkout.ConfirmInput) (*checkout.ConfirmResult, error)
}

type QRSessionSweepJobParams struct {
	Logger   *logger.Logger
	Sessions staleSessions
	Checkout sessionConfirmer
	// PollTimeout is the client countdown; older pending tokens are abandoned.
	PollTimeout time.Duration
	// Retention bounds how far back tokens are re-queried at the provider.
	Retention time.Duration
	Batch     int
}

// NewQRSessionSweepJob re-confirms QR tokens whose client stopped polling.
// A late provider success still produces exactly one order.
func NewQRSessionSweepJob(params QRSessionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("payment session service required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	job := &qrSessionSweepJob{
		logg:        params.Logger,
		sessions:    params.Sessions,
		checkout:    params.Checkout,
		pollTimeout: params.PollTimeout,
		retention:   params.Retention,
		batch:       params.Batch,
		now:         time.Now,
	}
	if job.pollTimeout <= 0 {
		job.pollTimeout = defaultSweepTimeout
	}
	if job.retention <= 0 {
		job.retention = defaultSweepRetention
	}
	if job.batch <= 0 {
		job.batch = defaultSweepBatch
	}
	return job, nil
}

type qrSessionSweepJob struct {
	logg        *logger.Logger
	sessions    staleSessions
	checkout    sessionConfirmer
	pollTimeout time.Duration
	retention   time.Duration
	batch       int
	now         func() time.Time
}

func (j *qrSessionSweepJob) Name() string { return "qr-session-sweep" }

func (j *qrSessionSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error

	abandoned, err := j.sessions.AbandonExpired(ctx, enums.PaymentProviderNetsQR, now.Add(-j.pollTimeout))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("abandon expired sessions: %w", err))
	}

	stale, err := j.sessions.ListStale(ctx, paymentsessions.StaleQuery{
		Provider:      enums.PaymentProviderNetsQR,
		ExpiredBefore: now,
		CreatedAfter:  now.Add(-j.retention),
		Limit:         j.batch,
	})
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list stale sessions: %w", err))
	}

	outcomes := map[checkout.ConfirmStatus]int{}
	for _, session := range stale {
		res, err := j.checkout.ConfirmPayment(ctx, checkout.ConfirmInput{Token: session.ID})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("confirm session %s: %w", session.ID, err))
			continue
		}
		outcomes[res.Status]++
		if res.Status == checkout.ConfirmSuccess && !res.Duplicate {
			j.logg.Info(j.logg.WithField(ctx, "payment_session", session.ID.String()), "qr_sweep.late_payment_honored")
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"abandoned": abandoned,
		"checked":   len(stale),
		"succeeded": outcomes[checkout.ConfirmSuccess],
		"pending":   outcomes[checkout.ConfirmPending],
		"failed":    outcomes[checkout.ConfirmFailed],
	}), "qr_sweep.complete")
	return errs
}
