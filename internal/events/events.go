// Package events carries booking lifecycle events over a Redis stream.
package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type Header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

func NewHeader() Header {
	return Header{
		ID:          watermill.NewUUID(),
		PublishedAt: time.Now().UTC(),
	}
}

type BookingCreated struct {
	Header      Header    `json:"header"`
	BookingID   int       `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	UserID      int       `json:"user_id"`
	ShowtimeID  int       `json:"showtime_id"`
	SeatNumbers []string  `json:"seat_numbers"`
	FinalAmount string    `json:"final_amount"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type BookingPaid struct {
	Header            Header   `json:"header"`
	BookingID         int      `json:"booking_id"`
	BookingCode       string   `json:"booking_code"`
	UserID            int      `json:"user_id"`
	ShowtimeID        int      `json:"showtime_id"`
	SeatNumbers       []string `json:"seat_numbers"`
	FinalAmount       string   `json:"final_amount"`
	ProviderReference string   `json:"provider_reference,omitempty"`
}

type BookingCancelled struct {
	Header      Header   `json:"header"`
	BookingID   int      `json:"booking_id"`
	BookingCode string   `json:"booking_code"`
	UserID      int      `json:"user_id"`
	ShowtimeID  int      `json:"showtime_id"`
	SeatNumbers []string `json:"seat_numbers"`
	Reason      string   `json:"reason"`
}

type BookingExpired struct {
	Header      Header   `json:"header"`
	BookingID   int      `json:"booking_id"`
	BookingCode string   `json:"booking_code"`
	UserID      int      `json:"user_id"`
	ShowtimeID  int      `json:"showtime_id"`
	SeatNumbers []string `json:"seat_numbers"`
}

func NewBookingCreated(b *domain.Booking) BookingCreated {
	return BookingCreated{
		Header:      NewHeader(),
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		SeatNumbers: b.SeatNumbers(),
		FinalAmount: b.FinalAmount.StringFixed(2),
		ExpiresAt:   b.ExpiresAt,
	}
}

func NewBookingPaid(b *domain.Booking) BookingPaid {
	e := BookingPaid{
		Header:      NewHeader(),
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		SeatNumbers: b.SeatNumbers(),
		FinalAmount: b.FinalAmount.StringFixed(2),
	}

	if b.ProviderReference != nil {
		e.ProviderReference = *b.ProviderReference
	}

	return e
}

func NewBookingCancelled(b *domain.Booking, reason string) BookingCancelled {
	return BookingCancelled{
		Header:      NewHeader(),
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		SeatNumbers: b.SeatNumbers(),
		Reason:      reason,
	}
}

func NewBookingExpired(b *domain.Booking) BookingExpired {
	return BookingExpired{
		Header:      NewHeader(),
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		SeatNumbers: b.SeatNumbers(),
	}
}
