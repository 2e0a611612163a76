package seatgrid

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// Grid holds the seat statuses of one showtime. Every exported operation of
// Manager runs against a Grid while holding its mutex, so mutations on the
// same showtime are strictly serialized.
type Grid struct {
	mu sync.Mutex

	showtimeID int
	movieID    int
	startTime  time.Time
	loaded     bool

	seats map[string]*domain.Seat
	// order keeps seats in the layout order returned by the store.
	order []string
}

func newGrid(showtimeID int) *Grid {
	return &Grid{
		showtimeID: showtimeID,
		seats:      make(map[string]*domain.Seat),
	}
}

func (g *Grid) ensureLoaded(ctx context.Context, repo domain.SeatRepository) error {
	if g.loaded {
		return nil
	}

	return g.load(ctx, repo)
}

func (g *Grid) load(ctx context.Context, repo domain.SeatRepository) error {
	showtimeSeats, err := repo.GetSeatsByShowtime(ctx, g.showtimeID)
	if err != nil {
		return err
	}

	if len(showtimeSeats.Seats) == 0 {
		return domain.ErrRecordNotFound
	}

	g.movieID = showtimeSeats.MovieID
	g.startTime = showtimeSeats.StartTime
	g.seats = make(map[string]*domain.Seat, len(showtimeSeats.Seats))
	g.order = make([]string, 0, len(showtimeSeats.Seats))

	for _, s := range showtimeSeats.Seats {
		seat := s
		g.seats[seat.Number] = &seat
		g.order = append(g.order, seat.Number)
	}

	g.loaded = true

	return nil
}

// firstConflict returns the first seat, in request order, that is not in the
// wanted status.
func (g *Grid) firstConflict(numbers []string, want domain.SeatStatus) (string, error) {
	for _, n := range numbers {
		seat, ok := g.seats[n]
		if !ok {
			return "", fmt.Errorf("%w: %s", domain.ErrSeatNotFound, n)
		}

		if seat.Status != want {
			return n, nil
		}
	}

	return "", nil
}

// matching returns the seats currently in the given status, skipping the rest.
func (g *Grid) matching(numbers []string, status domain.SeatStatus) []string {
	var out []string

	for _, n := range numbers {
		if seat, ok := g.seats[n]; ok && seat.Status == status {
			out = append(out, n)
		}
	}

	return out
}

func (g *Grid) set(numbers []string, status domain.SeatStatus) []domain.SeatChange {
	changes := make([]domain.SeatChange, 0, len(numbers))

	for _, n := range numbers {
		g.seats[n].Status = status
		changes = append(changes, domain.SeatChange{SeatNumber: n, Status: status})
	}

	return changes
}

func (g *Grid) snapshot() *domain.ShowtimeSeats {
	seats := make([]domain.Seat, 0, len(g.order))
	for _, n := range g.order {
		seats = append(seats, *g.seats[n])
	}

	return &domain.ShowtimeSeats{
		ShowtimeID: g.showtimeID,
		MovieID:    g.movieID,
		StartTime:  g.startTime,
		Seats:      seats,
	}
}

func dedupe(numbers []string) []string {
	out := make([]string, 0, len(numbers))

	for _, n := range numbers {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}

	return out
}
