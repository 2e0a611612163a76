package mocks

import (
	"context"
	"net/http"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentProvider struct {
	mock.Mock
	domain.PaymentProvider
}

func (m *MockPaymentProvider) Method() domain.PaymentMethod {
	args := m.Called()
	return args.Get(0).(domain.PaymentMethod)
}

func (m *MockPaymentProvider) CreatePaymentURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentProvider) ParseCallback(r *http.Request) (*domain.PaymentOutcome, error) {
	args := m.Called(r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOutcome), args.Error(1)
}

func (m *MockPaymentProvider) Acknowledge(w http.ResponseWriter, outcome *domain.PaymentOutcome, err error) {
	m.Called(w, outcome, err)
	w.WriteHeader(http.StatusOK)
}
