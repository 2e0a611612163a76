package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SeatType string

const (
	SeatTypeStandard SeatType = "standard"
	SeatTypeVIP      SeatType = "vip"
	SeatTypeCouple   SeatType = "couple"
)

type SeatStatus string

const (
	SeatStatusAvailable   SeatStatus = "available"
	SeatStatusHeld        SeatStatus = "held"
	SeatStatusBooked      SeatStatus = "booked"
	SeatStatusUnavailable SeatStatus = "unavailable"
)

// ShowtimeSeats is the authoritative seat grid of a single showtime.
type ShowtimeSeats struct {
	ShowtimeID int
	MovieID    int
	StartTime  time.Time
	Seats      []Seat
}

type Seat struct {
	Number string
	Row    string
	Type   SeatType
	Price  decimal.Decimal
	Status SeatStatus
}

// SeatChange reports the status a seat moved to after a grid mutation.
type SeatChange struct {
	SeatNumber string
	Status     SeatStatus
}

// ReservedSeat is a seat captured by a successful reservation together with
// the price it was reserved at.
type ReservedSeat struct {
	Number string
	Type   SeatType
	Price  decimal.Decimal
}

type SeatRepository interface {
	GetSeatsByShowtime(ctx context.Context, showtimeID int) (*ShowtimeSeats, error)
	// UpdateSeatStatuses moves every given seat from one status to another. It
	// fails with ErrEditConflict, changing nothing, if any seat is not in the
	// expected status.
	UpdateSeatStatuses(ctx context.Context, showtimeID int, seatNumbers []string, from, to SeatStatus) error
}
