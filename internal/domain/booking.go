package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusPaid, BookingStatusCancelled, BookingStatusExpired:
		return true
	}

	return false
}

type Booking struct {
	ID                int
	BookingCode       string
	UserID            int
	ShowtimeID        int
	Seats             []BookingSeat
	TotalAmount       decimal.Decimal
	DiscountAmount    decimal.Decimal
	FinalAmount       decimal.Decimal
	PromotionID       *int
	PaymentMethod     PaymentMethod
	Status            BookingStatus
	PaymentStatus     PaymentStatus
	ProviderReference *string
	ExpiresAt         time.Time
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type BookingSeat struct {
	SeatNumber string
	Type       SeatType
	Price      decimal.Decimal
}

func (b *Booking) SeatNumbers() []string {
	numbers := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		numbers[i] = s.SeatNumber
	}

	return numbers
}

func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsExpired reports whether a pending booking is past its hold window.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.IsPending() && b.ExpiresAt.Before(now)
}

// BookingStatusUpdate moves a booking out of From. The write only happens
// when the stored status still equals From.
type BookingStatusUpdate struct {
	BookingID         int
	From              BookingStatus
	To                BookingStatus
	PaymentStatus     PaymentStatus // empty keeps the current payment status
	ProviderReference *string
	PaidAt            *time.Time
}

type BookingRepository interface {
	Create(ctx context.Context, booking *Booking) error
	GetById(ctx context.Context, id int) (*Booking, error)
	GetByUserId(ctx context.Context, userId int, status *BookingStatus, pagination Pagination) ([]Booking, *Metadata, error)
	// UpdateStatus returns ErrInvalidTransition when the booking is no longer in
	// the expected status.
	UpdateStatus(ctx context.Context, update BookingStatusUpdate) error
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]Booking, error)
	// GetOrphanedHolds lists seats held since before heldBefore that no
	// pending booking owns.
	GetOrphanedHolds(ctx context.Context, heldBefore time.Time) ([]OrphanedHold, error)
}

// OrphanedHold groups the stranded held seats of one showtime.
type OrphanedHold struct {
	ShowtimeID  int
	SeatNumbers []string
}

// NewBookingCode returns a human readable code such as BK-20250114-4F9QX2.
func NewBookingCode(now time.Time) string {
	suffix := strings.ToUpper(shortuuid.New()[:6])
	return fmt.Sprintf("BK-%s-%s", now.Format("20060102"), suffix)
}
