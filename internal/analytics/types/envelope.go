package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// Envelope is one outbox event as delivered to the analytics subscription:
// the stored payload envelope merged with the publisher's routing attributes.
// Handlers decode Payload according to EventType.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	CorrelationID string                    `json:"correlation_id,omitempty"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// Decode unmarshals Payload into dest.
func (e Envelope) Decode(dest any) error {
	return json.Unmarshal(e.Payload, dest)
}
