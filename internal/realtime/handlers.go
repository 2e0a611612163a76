package realtime

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/metinatakli/cinex-booking/internal/contention"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type target int

const (
	toSender target = iota
	toRoom
	toConnection
)

// Outgoing is an event addressed to the sender, to every member of a
// showtime room or to one specific connection.
type Outgoing struct {
	target       target
	ShowtimeID   int
	ConnectionID string
	Event        Event
}

func sendToSender(ev Event) Outgoing {
	return Outgoing{target: toSender, Event: ev}
}

func sendToRoom(showtimeID int, ev Event) Outgoing {
	return Outgoing{target: toRoom, ShowtimeID: showtimeID, Event: ev}
}

func sendToConnection(connectionID string, ev Event) Outgoing {
	return Outgoing{target: toConnection, ConnectionID: connectionID, Event: ev}
}

// client is the part of a session the handlers need.
type client struct {
	ConnectionID string
	Identity     domain.Identity
}

// The handlers below only read and write the contention registry and return
// the events to deliver. They know nothing about connections or transports.

func handleJoin(reg *contention.Registry, c client, req ShowtimeRequest) []Outgoing {
	// a user rejoining starts from a clean slate in this showtime
	cleared := reg.DropUserFromShowtime(c.Identity.UserID, req.ShowtimeID)

	out := make([]Outgoing, 0, len(cleared)+1)
	for _, seat := range cleared {
		out = append(out, sendToRoom(req.ShowtimeID, seatUpdateEvent(req.ShowtimeID, seat)))
	}

	out = append(out, sendToSender(Event{
		Name: EventInitialSeatMap,
		Data: InitialSeatMap{ShowtimeID: req.ShowtimeID, Seats: reg.Snapshot(req.ShowtimeID)},
	}))

	return out
}

func handleLeave(reg *contention.Registry, c client, req ShowtimeRequest) []Outgoing {
	changed := reg.DropConnectionFromShowtime(c.ConnectionID, req.ShowtimeID)

	return roomUpdates(req.ShowtimeID, changed)
}

func handleSelect(reg *contention.Registry, c client, req SeatRequest) []Outgoing {
	seat, changed := reg.Select(req.ShowtimeID, req.SeatNumber, domain.Contender{
		UserID:       c.Identity.UserID,
		DisplayName:  c.Identity.DisplayName,
		ConnectionID: c.ConnectionID,
	})
	if !changed {
		return nil
	}

	return []Outgoing{sendToRoom(req.ShowtimeID, seatUpdateEvent(req.ShowtimeID, seat))}
}

func handleUnselect(reg *contention.Registry, c client, req SeatRequest) []Outgoing {
	seat, ok := reg.Unselect(req.ShowtimeID, req.SeatNumber, c.Identity.UserID)
	if !ok {
		return []Outgoing{sendToSender(Event{
			Name: EventUnselectFailed,
			Data: SeatNotice{
				ShowtimeID: req.ShowtimeID,
				SeatNumber: req.SeatNumber,
				Message:    fmt.Sprintf("seat %s is not selected by you", req.SeatNumber),
			},
		})}
	}

	return []Outgoing{sendToRoom(req.ShowtimeID, seatUpdateEvent(req.ShowtimeID, seat))}
}

func handleDisconnect(reg *contention.Registry, connectionID string) []Outgoing {
	var out []Outgoing

	updates := reg.DropConnection(connectionID)
	for _, showtimeID := range slices.Sorted(maps.Keys(updates)) {
		out = append(out, roomUpdates(showtimeID, updates[showtimeID])...)
	}

	return out
}

func handleIdleSweep(reg *contention.Registry, maxAge time.Duration) []Outgoing {
	var out []Outgoing

	for _, release := range reg.SweepIdle(maxAge) {
		for _, c := range release.Removed {
			out = append(out, sendToConnection(c.ConnectionID, Event{
				Name: EventSelectionTimedOut,
				Data: SeatNotice{
					ShowtimeID: release.ShowtimeID,
					SeatNumber: release.Seat.SeatNumber,
					Message:    fmt.Sprintf("your selection of seat %s has timed out", release.Seat.SeatNumber),
				},
			}))
		}

		out = append(out, sendToRoom(release.ShowtimeID, seatUpdateEvent(release.ShowtimeID, release.Seat)))
	}

	return out
}

// handleSeatsReserved clears the contention of seats that were just captured
// by a booking and tells everyone else they lost them.
func handleSeatsReserved(reg *contention.Registry, showtimeID, ownerID int, changes []domain.SeatChange) []Outgoing {
	seatNumbers := make([]string, len(changes))
	for i, c := range changes {
		seatNumbers[i] = c.SeatNumber
	}

	displaced := reg.ClearSeats(showtimeID, seatNumbers)

	var out []Outgoing

	for _, n := range seatNumbers {
		for _, c := range displaced[n] {
			if c.UserID == ownerID {
				continue
			}

			out = append(out, sendToConnection(c.ConnectionID, Event{
				Name: EventUnavailableByOthers,
				Data: SeatNotice{
					ShowtimeID: showtimeID,
					SeatNumber: n,
					Message:    fmt.Sprintf("seat %s was taken by another user", n),
				},
			}))
		}
	}

	return append(out, sendToRoom(showtimeID, seatStatusEvent(showtimeID, changes)))
}

func roomUpdates(showtimeID int, seats []domain.SeatContention) []Outgoing {
	out := make([]Outgoing, 0, len(seats))
	for _, seat := range seats {
		out = append(out, sendToRoom(showtimeID, seatUpdateEvent(showtimeID, seat)))
	}

	return out
}
