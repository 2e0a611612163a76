package realtime

import (
	"encoding/json"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// Inbound event names.
const (
	EventJoin         = "joinShowtime"
	EventLeave        = "leaveShowtime"
	EventSeatSelect   = "seat:selected"
	EventSeatUnselect = "seat:unselected"
)

// Outbound event names.
const (
	EventInitialSeatMap      = "initial-seat-map"
	EventSeatUpdate          = "seat:update"
	EventSeatStatus          = "seat:status"
	EventSelectionTimedOut   = "seat:selection-timed-out"
	EventUnavailableByOthers = "seat:unavailable-by-others"
	EventUnselectFailed      = "seat:unselect-failed"
	EventError               = "error"
)

// Event is the envelope of every message written to a connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ShowtimeRequest struct {
	ShowtimeID int `json:"showtimeId" validate:"gt=0"`
}

type SeatRequest struct {
	ShowtimeID int    `json:"showtimeId" validate:"gt=0"`
	SeatNumber string `json:"seatNumber" validate:"required,seat_number"`
}

type InitialSeatMap struct {
	ShowtimeID int                     `json:"showtimeId"`
	Seats      []domain.SeatContention `json:"seats"`
}

type SeatUpdate struct {
	ShowtimeID int `json:"showtimeId"`
	domain.SeatContention
}

type SeatStatusChange struct {
	SeatNumber string            `json:"seatNumber"`
	Status     domain.SeatStatus `json:"status"`
}

type SeatStatusUpdate struct {
	ShowtimeID int                `json:"showtimeId"`
	Seats      []SeatStatusChange `json:"seats"`
}

type SeatNotice struct {
	ShowtimeID int    `json:"showtimeId"`
	SeatNumber string `json:"seatNumber"`
	Message    string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func seatUpdateEvent(showtimeID int, seat domain.SeatContention) Event {
	return Event{Name: EventSeatUpdate, Data: SeatUpdate{ShowtimeID: showtimeID, SeatContention: seat}}
}

func seatStatusEvent(showtimeID int, changes []domain.SeatChange) Event {
	seats := make([]SeatStatusChange, len(changes))
	for i, c := range changes {
		seats[i] = SeatStatusChange{SeatNumber: c.SeatNumber, Status: c.Status}
	}

	return Event{Name: EventSeatStatus, Data: SeatStatusUpdate{ShowtimeID: showtimeID, Seats: seats}}
}

func errorEvent(code, message string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Code: code, Message: message}}
}
