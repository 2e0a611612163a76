// Package booking drives the booking lifecycle: seats are held when a
// booking is created, confirmed when it is paid and released when it is
// cancelled or expires.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/events"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	expiredBatchSize    = 100
	bookingCodeAttempts = 3
)

// SeatGrid is the authoritative seat state of every showtime.
type SeatGrid interface {
	TryReserve(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.ReservedSeat, []domain.SeatChange, error)
	Confirm(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error)
	Release(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error)
	Revoke(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error)
	Snapshot(ctx context.Context, showtimeID int) (*domain.ShowtimeSeats, error)
}

// SeatNotifier pushes seat changes to the clients watching a showtime.
type SeatNotifier interface {
	SeatsReserved(showtimeID, userID int, changes []domain.SeatChange)
	SeatsChanged(showtimeID int, changes []domain.SeatChange)
}

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	// HoldWindow is how long a pending booking keeps its seats.
	HoldWindow time.Duration
	// CancellationWindow is how long after payment a booking may still be
	// cancelled. Zero disables cancelling paid bookings.
	CancellationWindow time.Duration
}

type CreateBookingInput struct {
	ShowtimeID    int
	UserID        int
	SeatNumbers   []string
	PaymentMethod domain.PaymentMethod
	PromotionCode *string
	ClientIP      string
}

type CreateResult struct {
	Booking    *domain.Booking
	PaymentURL string
}

type Coordinator struct {
	cfg        Config
	seats      SeatGrid
	bookings   domain.BookingRepository
	promotions domain.PromotionRepository
	providers  *payment.Providers
	notifier   SeatNotifier
	publisher  EventPublisher
	logger     *slog.Logger
	now        func() time.Time

	locks *showtimeLocks

	created     metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(
	cfg Config,
	seats SeatGrid,
	bookings domain.BookingRepository,
	promotions domain.PromotionRepository,
	providers *payment.Providers,
	notifier SeatNotifier,
	publisher EventPublisher,
	logger *slog.Logger,
	opts ...Option) *Coordinator {

	c := &Coordinator{
		cfg:        cfg,
		seats:      seats,
		bookings:   bookings,
		promotions: promotions,
		providers:  providers,
		notifier:   notifier,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		locks:      newShowtimeLocks(),
	}

	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("cinex-booking/booking")
	c.created, _ = meter.Int64Counter("booking.created", metric.WithDescription("Number of bookings created"))
	c.transitions, _ = meter.Int64Counter("booking.transitions", metric.WithDescription("Booking status transitions"))
	c.conflicts, _ = meter.Int64Counter("seat.reserve.conflicts", metric.WithDescription("Reservations rejected by a seat conflict"))

	return c
}

// Create reserves the seats and records a pending booking. A booking whose
// final amount is zero is paid right away without involving a provider.
func (c *Coordinator) Create(ctx context.Context, input CreateBookingInput) (*CreateResult, error) {
	provider, err := c.providers.Get(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	booking, changes, err := c.reserve(ctx, input)
	if err != nil {
		return nil, err
	}

	c.notifier.SeatsReserved(booking.ShowtimeID, booking.UserID, changes)
	c.created.Add(ctx, 1)
	c.publish(ctx, events.NewBookingCreated(booking))

	logger := c.logger.With("booking_id", booking.ID, "booking_code", booking.BookingCode)
	logger.Info("booking created", "showtime_id", booking.ShowtimeID, "seats", booking.SeatNumbers(), "final_amount", booking.FinalAmount)

	result := &CreateResult{Booking: booking}

	if booking.FinalAmount.IsZero() {
		paid, err := c.ApplyPaymentResult(ctx, domain.PaymentOutcome{BookingID: booking.ID, Success: true})
		if err != nil {
			return nil, fmt.Errorf("settle free booking %d: %w", booking.ID, err)
		}

		result.Booking = paid
		return result, nil
	}

	url, err := provider.CreatePaymentURL(ctx, domain.PaymentRequest{
		BookingID:   booking.ID,
		BookingCode: booking.BookingCode,
		UserID:      booking.UserID,
		Amount:      booking.FinalAmount,
		Description: fmt.Sprintf("Payment for booking %s", booking.BookingCode),
		ExpiresAt:   booking.ExpiresAt,
		ClientIP:    input.ClientIP,
	})
	if err != nil {
		// the booking stays pending and is reclaimed by the expiry sweep
		logger.Error("failed to create payment url", "payment_method", input.PaymentMethod, "error", err)
		return result, nil
	}

	result.PaymentURL = url

	return result, nil
}

func (c *Coordinator) reserve(ctx context.Context, input CreateBookingInput) (*domain.Booking, []domain.SeatChange, error) {
	unlock := c.locks.lock(input.ShowtimeID)
	defer unlock()

	reserved, changes, err := c.seats.TryReserve(ctx, input.ShowtimeID, input.SeatNumbers)
	if err != nil {
		if errors.Is(err, domain.ErrSeatUnavailable) {
			c.conflicts.Add(ctx, 1)
		}
		return nil, nil, err
	}

	seatNumbers := make([]string, len(reserved))
	for i, s := range reserved {
		seatNumbers[i] = s.Number
	}

	booking, err := c.newBooking(ctx, input, reserved)
	if err == nil {
		err = c.store(ctx, booking)
	}

	if err != nil {
		_, releaseErr := c.seats.Release(ctx, input.ShowtimeID, seatNumbers)
		if releaseErr != nil {
			// left for the sweep to reclaim as orphaned holds
			c.logger.Error("failed to release seats of rejected booking",
				"showtime_id", input.ShowtimeID, "seats", seatNumbers, "error", releaseErr)
		}

		return nil, nil, err
	}

	return booking, changes, nil
}

// store inserts the booking and draws a new code when the generated one is
// already taken.
func (c *Coordinator) store(ctx context.Context, booking *domain.Booking) error {
	var err error

	for range bookingCodeAttempts {
		err = c.bookings.Create(ctx, booking)
		if !errors.Is(err, domain.ErrDuplicateBookingCode) {
			return err
		}

		c.logger.Warn("booking code collision", "booking_code", booking.BookingCode)
		booking.BookingCode = domain.NewBookingCode(c.now())
	}

	return err
}

func (c *Coordinator) newBooking(ctx context.Context, input CreateBookingInput, reserved []domain.ReservedSeat) (*domain.Booking, error) {
	now := c.now()

	booking := &domain.Booking{
		BookingCode:   domain.NewBookingCode(now),
		UserID:        input.UserID,
		ShowtimeID:    input.ShowtimeID,
		Seats:         make([]domain.BookingSeat, len(reserved)),
		PaymentMethod: input.PaymentMethod,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		ExpiresAt:     now.Add(c.cfg.HoldWindow),
	}

	total := decimal.Zero
	for i, s := range reserved {
		booking.Seats[i] = domain.BookingSeat{SeatNumber: s.Number, Type: s.Type, Price: s.Price}
		total = total.Add(s.Price)
	}

	booking.TotalAmount = total
	booking.DiscountAmount = decimal.Zero
	booking.FinalAmount = total

	if input.PromotionCode == nil || *input.PromotionCode == "" {
		return booking, nil
	}

	promotion, err := c.resolvePromotion(ctx, *input.PromotionCode, input.ShowtimeID, total, now)
	if err != nil {
		return nil, err
	}

	booking.PromotionID = &promotion.ID
	booking.DiscountAmount = promotion.CalculateDiscount(total)
	booking.FinalAmount = total.Sub(booking.DiscountAmount)

	return booking, nil
}

func (c *Coordinator) resolvePromotion(
	ctx context.Context,
	code string,
	showtimeID int,
	orderValue decimal.Decimal,
	now time.Time) (*domain.Promotion, error) {

	promotion, err := c.promotions.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown code %s", domain.ErrInvalidPromotion, code)
		}
		return nil, err
	}

	showtime, err := c.seats.Snapshot(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	ok := promotion.IsApplicable(domain.PromotionContext{
		OrderValue: orderValue,
		MovieID:    showtime.MovieID,
		ShowtimeID: showtimeID,
		Now:        now,
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPromotion, code)
	}

	return promotion, nil
}

// ApplyPaymentResult settles a pending booking from a provider callback.
// Results for bookings that are no longer pending are ignored, so duplicated
// callbacks are harmless.
func (c *Coordinator) ApplyPaymentResult(ctx context.Context, outcome domain.PaymentOutcome) (*domain.Booking, error) {
	booking, err := c.bookings.GetById(ctx, outcome.BookingID)
	if err != nil {
		return nil, err
	}

	var done *announcement

	err = c.withShowtime(booking.ShowtimeID, func() error {
		booking, done, err = c.settle(ctx, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.announce(ctx, done)

	return booking, nil
}

// settle must be called with the showtime lock held.
func (c *Coordinator) settle(ctx context.Context, outcome domain.PaymentOutcome) (*domain.Booking, *announcement, error) {
	// re-read under the lock: a concurrent callback or sweep may have won
	booking, err := c.bookings.GetById(ctx, outcome.BookingID)
	if err != nil {
		return nil, nil, err
	}

	logger := c.logger.With("booking_id", booking.ID, "provider_reference", outcome.ProviderReference)

	if !booking.IsPending() {
		logger.Info("ignoring payment result for settled booking", "status", booking.Status, "success", outcome.Success)
		return booking, nil, nil
	}

	var reference *string
	if outcome.ProviderReference != "" {
		reference = &outcome.ProviderReference
	}

	if outcome.Success {
		return c.markPaid(ctx, logger, booking, reference)
	}

	err = c.transition(ctx, booking, domain.BookingStatusUpdate{
		To:                domain.BookingStatusCancelled,
		PaymentStatus:     domain.PaymentStatusFailed,
		ProviderReference: reference,
	})
	if err != nil {
		return nil, nil, err
	}

	changes := c.releaseSeats(ctx, booking)
	logger.Info("booking cancelled after failed payment")

	return booking, &announcement{
		showtimeID: booking.ShowtimeID,
		changes:    changes,
		event:      events.NewBookingCancelled(booking, "payment failed"),
	}, nil
}

func (c *Coordinator) markPaid(
	ctx context.Context,
	logger *slog.Logger,
	booking *domain.Booking,
	reference *string) (*domain.Booking, *announcement, error) {

	changes, err := c.seats.Confirm(ctx, booking.ShowtimeID, booking.SeatNumbers())
	if err != nil {
		return nil, nil, fmt.Errorf("confirm seats of booking %d: %w", booking.ID, err)
	}

	paidAt := c.now()

	err = c.transition(ctx, booking, domain.BookingStatusUpdate{
		To:                domain.BookingStatusPaid,
		PaymentStatus:     domain.PaymentStatusCompleted,
		ProviderReference: reference,
		PaidAt:            &paidAt,
	})
	if err != nil {
		logger.Error("seats confirmed but booking could not be marked paid", "error", err)
		return nil, nil, err
	}

	if booking.PromotionID != nil {
		err = c.promotions.IncrementUsage(ctx, *booking.PromotionID)
		if err != nil {
			logger.Error("failed to increment promotion usage", "promotion_id", *booking.PromotionID, "error", err)
		}
	}

	logger.Info("booking paid", "final_amount", booking.FinalAmount)

	return booking, &announcement{
		showtimeID: booking.ShowtimeID,
		changes:    changes,
		event:      events.NewBookingPaid(booking),
	}, nil
}

// Cancel is requested by the owner of the booking. Pending bookings release
// their seats; paid bookings can only be cancelled within the cancellation
// window and are marked refunded.
func (c *Coordinator) Cancel(ctx context.Context, bookingID, userID int) (*domain.Booking, error) {
	booking, err := c.bookings.GetById(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.UserID != userID {
		return nil, domain.ErrForbidden
	}

	var done *announcement

	err = c.withShowtime(booking.ShowtimeID, func() error {
		booking, done, err = c.cancel(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.announce(ctx, done)

	return booking, nil
}

// cancel must be called with the showtime lock held.
func (c *Coordinator) cancel(ctx context.Context, bookingID int) (*domain.Booking, *announcement, error) {
	booking, err := c.bookings.GetById(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	var changes []domain.SeatChange

	switch {
	case booking.IsPending():
		err = c.transition(ctx, booking, domain.BookingStatusUpdate{To: domain.BookingStatusCancelled})
		if err != nil {
			return nil, nil, err
		}

		changes = c.releaseSeats(ctx, booking)
	case c.refundable(booking):
		changes, err = c.seats.Revoke(ctx, booking.ShowtimeID, booking.SeatNumbers())
		if err != nil {
			return nil, nil, err
		}

		err = c.transition(ctx, booking, domain.BookingStatusUpdate{
			To:            domain.BookingStatusCancelled,
			PaymentStatus: domain.PaymentStatusRefunded,
		})
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, booking.Status)
	}

	c.logger.Info("booking cancelled by user", "booking_id", booking.ID, "payment_status", booking.PaymentStatus)

	return booking, &announcement{
		showtimeID: booking.ShowtimeID,
		changes:    changes,
		event:      events.NewBookingCancelled(booking, "cancelled by user"),
	}, nil
}

func (c *Coordinator) refundable(b *domain.Booking) bool {
	if b.Status != domain.BookingStatusPaid || c.cfg.CancellationWindow <= 0 || b.PaidAt == nil {
		return false
	}

	return c.now().Before(b.PaidAt.Add(c.cfg.CancellationWindow))
}

// SweepExpired expires pending bookings whose hold window ended before now
// and returns how many were expired. A failing booking is logged and skipped.
// Seats left held without a pending booking for longer than the hold window
// are released as well.
func (c *Coordinator) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	candidates, err := c.bookings.GetExpiredPending(ctx, now, expiredBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		ok, err := c.expire(ctx, candidate.ID, candidate.ShowtimeID, now)
		if err != nil {
			c.logger.Error("failed to expire booking", "booking_id", candidate.ID, "error", err)
			continue
		}

		if ok {
			expired++
		}
	}

	err = c.reclaimOrphans(ctx, now.Add(-c.cfg.HoldWindow))
	if err != nil {
		c.logger.Error("failed to reclaim orphaned seat holds", "error", err)
	}

	return expired, nil
}

func (c *Coordinator) expire(ctx context.Context, bookingID, showtimeID int, now time.Time) (bool, error) {
	var done *announcement

	err := c.withShowtime(showtimeID, func() error {
		booking, err := c.bookings.GetById(ctx, bookingID)
		if err != nil {
			return err
		}

		if !booking.IsExpired(now) {
			return nil
		}

		err = c.transition(ctx, booking, domain.BookingStatusUpdate{To: domain.BookingStatusExpired})
		if err != nil {
			return err
		}

		c.logger.Info("booking expired", "booking_id", booking.ID, "seats", booking.SeatNumbers())

		done = &announcement{
			showtimeID: booking.ShowtimeID,
			changes:    c.releaseSeats(ctx, booking),
			event:      events.NewBookingExpired(booking),
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	c.announce(ctx, done)

	return done != nil, nil
}

// reclaimOrphans releases held seats that lost their booking, which happens
// when a booking insert and the compensating release both fail or when the
// process dies between the two.
func (c *Coordinator) reclaimOrphans(ctx context.Context, heldBefore time.Time) error {
	holds, err := c.bookings.GetOrphanedHolds(ctx, heldBefore)
	if err != nil {
		return err
	}

	for _, hold := range holds {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var changes []domain.SeatChange

		err := c.withShowtime(hold.ShowtimeID, func() error {
			// a booking may have claimed the seats since the first read
			current, err := c.bookings.GetOrphanedHolds(ctx, heldBefore)
			if err != nil {
				return err
			}

			seats := orphanedSeats(current, hold.ShowtimeID)
			if len(seats) == 0 {
				return nil
			}

			changes, err = c.seats.Release(ctx, hold.ShowtimeID, seats)
			return err
		})
		if err != nil {
			c.logger.Error("failed to release orphaned seats", "showtime_id", hold.ShowtimeID, "seats", hold.SeatNumbers, "error", err)
			continue
		}

		if len(changes) > 0 {
			c.logger.Warn("released orphaned seat holds", "showtime_id", hold.ShowtimeID, "seats", len(changes))
			c.announce(ctx, &announcement{showtimeID: hold.ShowtimeID, changes: changes})
		}
	}

	return nil
}

// releaseSeats frees the seats of a booking that has already left pending.
// Seats that cannot be released stay held until reclaimOrphans picks them up.
func (c *Coordinator) releaseSeats(ctx context.Context, b *domain.Booking) []domain.SeatChange {
	changes, err := c.seats.Release(ctx, b.ShowtimeID, b.SeatNumbers())
	if err != nil {
		c.logger.Error("failed to release seats of booking", "booking_id", b.ID, "status", b.Status, "error", err)
		return nil
	}

	return changes
}

func orphanedSeats(holds []domain.OrphanedHold, showtimeID int) []string {
	for _, h := range holds {
		if h.ShowtimeID == showtimeID {
			return h.SeatNumbers
		}
	}

	return nil
}

// announcement is what a transition tells clients and subscribers once the
// showtime lock has been released.
type announcement struct {
	showtimeID int
	changes    []domain.SeatChange
	event      any
}

func (c *Coordinator) announce(ctx context.Context, a *announcement) {
	if a == nil {
		return
	}

	if len(a.changes) > 0 {
		c.notifier.SeatsChanged(a.showtimeID, a.changes)
	}

	if a.event != nil {
		c.publish(ctx, a.event)
	}
}

// withShowtime runs fn while holding the lock of the showtime.
func (c *Coordinator) withShowtime(showtimeID int, fn func() error) error {
	unlock := c.locks.lock(showtimeID)
	defer unlock()

	return fn()
}

// transition writes the status change and applies it to b.
func (c *Coordinator) transition(ctx context.Context, b *domain.Booking, update domain.BookingStatusUpdate) error {
	update.BookingID = b.ID
	update.From = b.Status

	err := c.bookings.UpdateStatus(ctx, update)
	if err != nil {
		return err
	}

	b.Status = update.To
	if update.PaymentStatus != "" {
		b.PaymentStatus = update.PaymentStatus
	}
	if update.ProviderReference != nil {
		b.ProviderReference = update.ProviderReference
	}
	if update.PaidAt != nil {
		b.PaidAt = update.PaidAt
	}
	b.UpdatedAt = c.now()

	c.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(update.From)),
		attribute.String("to", string(update.To)),
	))

	return nil
}

func (c *Coordinator) publish(ctx context.Context, event any) {
	err := c.publisher.Publish(ctx, event)
	if err != nil {
		c.logger.Error("failed to publish event", "event", fmt.Sprintf("%T", event), "error", err)
	}
}
