package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodVNPay  PaymentMethod = "vnpay"
	PaymentMethodMomo   PaymentMethod = "momo"
	PaymentMethodStripe PaymentMethod = "stripe"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodVNPay, PaymentMethodMomo, PaymentMethodStripe:
		return true
	}

	return false
}

// PaymentOutcome is the provider-independent result of a payment callback.
type PaymentOutcome struct {
	BookingID         int
	Success           bool
	ProviderReference string
	Raw               map[string]string
}

// PaymentRequest carries what a provider needs to build a payment URL.
type PaymentRequest struct {
	BookingID   int
	BookingCode string
	UserID      int
	Amount      decimal.Decimal
	Description string
	ExpiresAt   time.Time
	ClientIP    string
}

type PaymentProvider interface {
	Method() PaymentMethod
	CreatePaymentURL(ctx context.Context, req PaymentRequest) (string, error)
	// ParseCallback verifies and normalizes a provider callback. When the
	// signature does not verify but a booking id could still be read, it
	// returns a failed outcome together with ErrProviderSignatureInvalid.
	// A nil outcome with a nil error means the callback carries nothing to
	// apply, e.g. a webhook event type that is not handled.
	ParseCallback(r *http.Request) (*PaymentOutcome, error)
	// Acknowledge writes the response the provider expects for a callback.
	Acknowledge(w http.ResponseWriter, outcome *PaymentOutcome, err error)
}
