package checkout

import (
	"context"

	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

// State is a step of one checkout attempt.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateInsufficientStock State = "insufficient_stock"
	StateCreating          State = "creating"
	StateConflict          State = "conflict"
	StatePersisted         State = "persisted"
	StatePaymentPending    State = "payment_pending"
	StatePaid              State = "paid"
	StateFailed            State = "failed"
	StateAbandoned         State = "abandoned"
)

func (s State) String() string { return string(s) }

// attempt tracks and logs the state of a single checkout or confirmation.
type attempt struct {
	logg  *logger.Logger
	state State
}

func newAttempt(logg *logger.Logger, initial State) *attempt {
	return &attempt{logg: logg, state: initial}
}

func (a *attempt) moveTo(ctx context.Context, next State) {
	prev := a.state
	a.state = next
	if a.logg == nil {
		return
	}
	ctx = a.logg.WithFields(ctx, map[string]any{
		"checkout_state_from": prev.String(),
		"checkout_state_to":   next.String(),
	})
	a.logg.Info(ctx, "checkout.state_changed")
}

func (a *attempt) current() State { return a.state }
