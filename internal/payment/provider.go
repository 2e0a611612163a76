// Package payment adapts external payment providers to domain.PaymentProvider.
// Every provider embeds the booking id in its own correlation token and turns
// its callback payload into a domain.PaymentOutcome.
package payment

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// Providers is the set of providers a deployment has configured.
type Providers struct {
	byMethod map[domain.PaymentMethod]domain.PaymentProvider
}

func NewProviders(providers ...domain.PaymentProvider) *Providers {
	p := &Providers{byMethod: make(map[domain.PaymentMethod]domain.PaymentProvider, len(providers))}

	for _, provider := range providers {
		if provider != nil {
			p.byMethod[provider.Method()] = provider
		}
	}

	return p
}

// Get returns the provider for the method or ErrUnsupportedPaymentMethod.
func (p *Providers) Get(method domain.PaymentMethod) (domain.PaymentProvider, error) {
	provider, ok := p.byMethod[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPaymentMethod, method)
	}

	return provider, nil
}

func (p *Providers) Methods() []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(p.byMethod))
	for m := range p.byMethod {
		methods = append(methods, m)
	}

	slices.Sort(methods)

	return methods
}

func parseBookingID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid booking id %q", s)
	}

	return id, nil
}
