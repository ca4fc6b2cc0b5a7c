package enums

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: transient publish failures exhausted the retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable is the catch-all for permanent failures.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnknownEvent: no descriptor for the event or aggregate type.
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
	// OutboxDLQReasonMalformedPayload: envelope or payload failed to decode.
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	// OutboxDLQReasonUnroutable: the topic has no publisher in this process.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

// IsValid reports whether r is one of the reasons the publisher writes.
func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts,
		OutboxDLQReasonNonRetryable,
		OutboxDLQReasonUnknownEvent,
		OutboxDLQReasonMalformedPayload,
		OutboxDLQReasonUnroutable:
		return true
	}
	return false
}

// Replayable is true when an operator can requeue the row unchanged and
// expect a different outcome.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonUnroutable
}
