package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const metadataBookingID = "booking_id"

type StripeConfig struct {
	WebhookSecret string
	SuccessURL    string
	FailureURL    string
	Currency      string
}

type StripePaymentProvider struct {
	cfg StripeConfig

	// newSession is replaced in tests
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripePaymentProvider(cfg StripeConfig) *StripePaymentProvider {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	return &StripePaymentProvider{
		cfg:        cfg,
		newSession: session.New,
	}
}

func (s *StripePaymentProvider) Method() domain.PaymentMethod {
	return domain.PaymentMethodStripe
}

func (s *StripePaymentProvider) CreatePaymentURL(ctx context.Context, req domain.PaymentRequest) (string, error) {
	amountCents := req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if amountCents <= 0 {
		return "", fmt.Errorf("stripe: amount must be positive, got %s", req.Amount)
	}

	bookingID := strconv.Itoa(req.BookingID)

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("Booking %s", req.BookingCode)),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.FailureURL),
		Metadata: map[string]string{
			metadataBookingID: bookingID,
			"booking_code":    req.BookingCode,
			"user_id":         strconv.Itoa(req.UserID),
		},
		ClientReferenceID: stripe.String(bookingID),
	}
	params.Context = ctx

	checkoutSession, err := s.newSession(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return checkoutSession.URL, nil
}

func (s *StripePaymentProvider) ParseCallback(r *http.Request) (*domain.PaymentOutcome, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		return nil, fmt.Errorf("stripe: read webhook body: %w", err)
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		var unverified stripe.Event
		if json.Unmarshal(payload, &unverified) != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}

		outcome, parseErr := checkoutOutcome(unverified)
		if parseErr != nil || outcome == nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}

		outcome.Success = false

		return outcome, domain.ErrProviderSignatureInvalid
	}

	return checkoutOutcome(event)
}

func checkoutOutcome(event stripe.Event) (*domain.PaymentOutcome, error) {
	var success bool

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		success = true
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		success = false
	default:
		return nil, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe: event %s has no data", event.ID)
	}

	var checkoutSession stripe.CheckoutSession
	err := json.Unmarshal(event.Data.Raw, &checkoutSession)
	if err != nil {
		return nil, fmt.Errorf("stripe: decode checkout session: %w", err)
	}

	bookingID, err := parseBookingID(checkoutSession.Metadata[metadataBookingID])
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}

	// a completed session may still wait for an async payment method
	if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
		checkoutSession.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}

	reference := checkoutSession.ID
	if checkoutSession.PaymentIntent != nil && checkoutSession.PaymentIntent.ID != "" {
		reference = checkoutSession.PaymentIntent.ID
	}

	return &domain.PaymentOutcome{
		BookingID:         bookingID,
		Success:           success,
		ProviderReference: reference,
		Raw: map[string]string{
			"event_id":       event.ID,
			"event_type":     string(event.Type),
			"session_id":     checkoutSession.ID,
			"payment_status": string(checkoutSession.PaymentStatus),
		},
	}, nil
}

func (s *StripePaymentProvider) Acknowledge(w http.ResponseWriter, _ *domain.PaymentOutcome, _ error) {
	writeAck(w, map[string]bool{"received": true})
}
