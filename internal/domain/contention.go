package domain

import "time"

// Contender is a connected user currently interested in a seat.
type Contender struct {
	UserID       int       `json:"userId"`
	DisplayName  string    `json:"displayName"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type ContentionStatus string

const (
	ContentionSelected  ContentionStatus = "selected"
	ContentionAvailable ContentionStatus = "available"
)

// SeatContention is the ephemeral view of one seat. Contenders are ordered by
// JoinedAt, the first one being the primary holder.
type SeatContention struct {
	SeatNumber string           `json:"seatNumber"`
	Status     ContentionStatus `json:"status"`
	Contenders []Contender      `json:"users"`
}

func NewSeatContention(seatNumber string, contenders []Contender) SeatContention {
	status := ContentionSelected
	if len(contenders) == 0 {
		status = ContentionAvailable
		contenders = []Contender{}
	}

	return SeatContention{
		SeatNumber: seatNumber,
		Status:     status,
		Contenders: contenders,
	}
}
