// Package netswebhook accepts NETS QR settlement notifications. The body is
// only trusted for the retrieval reference; the status is always re-queried.
package netswebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

type confirmer interface {
	ConfirmByExternalRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*checkout.ConfirmResult, error)
}

// Notification is the NETS push body.
type Notification struct {
	TxnRetrievalRef string `json:"txn_retrieval_ref"`
	Status          string `json:"txn_status,omitempty"`
	EventID         string `json:"event_id,omitempty"`
}

// DedupeKey identifies a delivery for the idempotency guard.
func (n Notification) DedupeKey() string {
	if n.EventID != "" {
		return n.EventID
	}
	return n.TxnRetrievalRef + ":" + n.Status
}

// Decode parses a verified body.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode nets notification")
	}
	n.TxnRetrievalRef = strings.TrimSpace(n.TxnRetrievalRef)
	if n.TxnRetrievalRef == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "txn_retrieval_ref is required")
	}
	return n, nil
}

type Service struct {
	checkout confirmer
	logg     *logger.Logger
}

func NewService(checkout confirmer, logg *logger.Logger) (*Service, error) {
	if checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	return &Service{checkout: checkout, logg: logg}, nil
}

// Handle confirms the session behind the reference. A late notification for
// an abandoned session still produces the order.
func (s *Service) Handle(ctx context.Context, n Notification) (*checkout.ConfirmResult, error) {
	ctx = s.logg.WithField(ctx, "txn_retrieval_ref", n.TxnRetrievalRef)
	res, err := s.checkout.ConfirmByExternalRef(ctx, enums.PaymentProviderNetsQR, n.TxnRetrievalRef)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "nets.notification_unknown_ref")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "confirm_status", string(res.Status)), "nets.notification_handled")
	return res, nil
}
