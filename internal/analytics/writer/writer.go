package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config names the fact tables and how inserts are batched and retried.
type Config struct {
	OrdersTable  string
	RefundsTable string
	BatchSize    int
	RetryPolicy  RetryPolicy
}

// RetryPolicy counts attempts, so MaxAttempts 1 disables retries.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// pending holds rows for one table until the batch fills.
type pending[T any] struct {
	table   string
	rows    []T
	eventID func(*T) string
}

// savers keys every row by its event id so BigQuery drops a redelivered
// event inside its best-effort dedupe window.
func (p *pending[T]) savers() []any {
	out := make([]any, len(p.rows))
	for i := range p.rows {
		out[i] = &cbigquery.StructSaver{Struct: &p.rows[i], InsertID: p.eventID(&p.rows[i])}
	}
	return out
}

// BigQueryWriter streams fact rows into BigQuery. It is shared by the
// concurrent Pub/Sub callbacks, so buffers are guarded by mu.
type BigQueryWriter struct {
	client    tableInserter
	batchSize int
	retry     RetryPolicy

	mu      sync.Mutex
	orders  pending[types.OrderEventRow]
	refunds pending[types.RefundEventRow]
}

// New creates a writer over the shared BigQuery client.
func New(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	ordersTable := strings.TrimSpace(cfg.OrdersTable)
	if ordersTable == "" {
		return nil, errors.New("orders table is required")
	}
	refundsTable := strings.TrimSpace(cfg.RefundsTable)
	if refundsTable == "" {
		return nil, errors.New("refunds table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &BigQueryWriter{
		client:    client,
		batchSize: batchSize,
		retry:     cfg.RetryPolicy.withDefaults(),
		orders: pending[types.OrderEventRow]{
			table:   ordersTable,
			eventID: func(r *types.OrderEventRow) string { return r.EventID },
		},
		refunds: pending[types.RefundEventRow]{
			table:   refundsTable,
			eventID: func(r *types.RefundEventRow) string { return r.EventID },
		},
	}, nil
}

func (w *BigQueryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orders.rows = append(w.orders.rows, row)
	if len(w.orders.rows) < w.batchSize {
		return nil
	}
	return flush(ctx, w, &w.orders)
}

func (w *BigQueryWriter) InsertRefundEvent(ctx context.Context, row types.RefundEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refunds.rows = append(w.refunds.rows, row)
	if len(w.refunds.rows) < w.batchSize {
		return nil
	}
	return flush(ctx, w, &w.refunds)
}

// Flush writes any buffered rows immediately.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := flush(ctx, w, &w.orders); err != nil {
		return err
	}
	return flush(ctx, w, &w.refunds)
}

// flush keeps the rows buffered on failure so the next call retries them.
func flush[T any](ctx context.Context, w *BigQueryWriter, p *pending[T]) error {
	if len(p.rows) == 0 {
		return nil
	}
	if err := w.insert(ctx, p.table, p.savers()); err != nil {
		return err
	}
	p.rows = p.rows[:0]
	return nil
}

// insert reports failures as dependency errors so the worker nacks and
// Pub/Sub redelivers.
func (w *BigQueryWriter) insert(ctx context.Context, table string, rows []any) error {
	err := retry.Do(ctx, w.retry.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, table, rows)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("insert %s rows", table))
	}
	return nil
}

// isRetryable reports whether every underlying failure is transient. A
// single permanent row error (bad schema, invalid value) fails the batch.
func isRetryable(err error) bool {
	var multi cbigquery.MultiError
	var rowErrs cbigquery.PutMultiError
	var apiErr *googleapi.Error

	switch {
	case err == nil:
		return false
	case errors.As(err, &multi):
		return allRetryable(multi)
	case errors.As(err, &rowErrs):
		if len(rowErrs) == 0 {
			return false
		}
		for _, rowErr := range rowErrs {
			if !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	case errors.As(err, &apiErr):
		return transientHTTP[apiErr.Code]
	}

	st, ok := status.FromError(err)
	return ok && transientGRPC[st.Code()]
}

var transientHTTP = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusRequestTimeout:      true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var transientGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

func allRetryable(errs cbigquery.MultiError) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !isRetryable(inner) {
			return false
		}
	}
	return true
}

// EncodeJSON serializes payload for a BigQuery JSON column. nil and empty
// raw messages become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		if len(raw) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
	}
	if payload == nil {
		return cbigquery.NullJSON{}, nil
	}
	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}
