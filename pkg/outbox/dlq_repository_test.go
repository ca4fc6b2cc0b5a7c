package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

func deadLetter(orderID uuid.UUID, failedAt time.Time, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventPaymentCompensated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQInsertIsOncePerEvent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	orderID := uuid.New()
	entry := deadLetter(orderID, time.Now().UTC(), strings.Repeat("x", 5000))

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			dup := entry
			dup.ID = uuid.Nil
			return repo.InsertTx(tx, dup)
		}))
	}

	rows, err := repo.ForAggregate(context.Background(), enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, *rows[0].ErrorMessage, maxDLQErrorLen)
}

func TestDLQInsertNeedsEventID(t *testing.T) {
	conn := dbtest.Open(t)
	entry := deadLetter(uuid.New(), time.Now().UTC(), "boom")
	entry.EventID = uuid.Nil
	require.Error(t, NewDLQRepository(conn).InsertTx(conn, entry))
}

func TestDLQDeleteBeforeKeepsRecent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	orderID := uuid.New()
	now := time.Now().UTC()
	for _, at := range []time.Time{now.Add(-100 * 24 * time.Hour), now.Add(-95 * 24 * time.Hour), now.Add(-time.Hour)} {
		require.NoError(t, repo.InsertTx(conn, deadLetter(orderID, at, "failed")))
	}

	deleted, err := repo.DeleteBefore(context.Background(), now.Add(-90*24*time.Hour), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	rows, err := repo.ForAggregate(context.Background(), enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
