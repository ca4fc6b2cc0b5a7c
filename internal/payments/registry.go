package payments

import (
	"fmt"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

// Registry resolves the enabled rails by provider.
type Registry struct {
	rails map[enums.PaymentProvider]Rail
}

// NewRegistry skips nil rails so disabled providers can be passed through as-is.
func NewRegistry(rails ...Rail) *Registry {
	r := &Registry{rails: make(map[enums.PaymentProvider]Rail, len(rails))}
	for _, rail := range rails {
		if rail == nil {
			continue
		}
		r.rails[rail.Provider()] = rail
	}
	return r
}

func (r *Registry) Rail(provider enums.PaymentProvider) (Rail, error) {
	if r != nil {
		if rail, ok := r.rails[provider]; ok {
			return rail, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment provider %q is not available", provider))
}

// Providers lists the enabled providers in a stable order.
func (r *Registry) Providers() []enums.PaymentProvider {
	out := make([]enums.PaymentProvider, 0, len(r.rails))
	for _, p := range []enums.PaymentProvider{enums.PaymentProviderStripe, enums.PaymentProviderPayPal, enums.PaymentProviderNetsQR} {
		if _, ok := r.rails[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
