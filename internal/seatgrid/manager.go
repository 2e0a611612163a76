package seatgrid

import (
	"context"
	"errors"
	"sync"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

// Manager owns the in-memory grids of all showtimes served by this process.
// Grids are loaded lazily from the store and every mutation is written
// through to it before the call returns.
type Manager struct {
	repo domain.SeatRepository

	mu    sync.Mutex
	grids map[int]*Grid
}

func NewManager(repo domain.SeatRepository) *Manager {
	return &Manager{
		repo:  repo,
		grids: make(map[int]*Grid),
	}
}

// TryReserve moves all requested seats from available to held, or none of
// them. Duplicated seat numbers are reserved once.
func (m *Manager) TryReserve(
	ctx context.Context,
	showtimeID int,
	seatNumbers []string) ([]domain.ReservedSeat, []domain.SeatChange, error) {

	var (
		reserved []domain.ReservedSeat
		changes  []domain.SeatChange
	)

	numbers := dedupe(seatNumbers)

	err := m.withGrid(ctx, showtimeID, func(g *Grid) error {
		conflict, err := g.firstConflict(numbers, domain.SeatStatusAvailable)
		if err != nil {
			return err
		}

		if conflict != "" {
			return &domain.SeatUnavailableError{SeatNumber: conflict}
		}

		changes = g.set(numbers, domain.SeatStatusHeld)

		err = m.repo.UpdateSeatStatuses(ctx, showtimeID, numbers, domain.SeatStatusAvailable, domain.SeatStatusHeld)
		if err != nil {
			g.set(numbers, domain.SeatStatusAvailable)
			changes = nil

			if errors.Is(err, domain.ErrEditConflict) {
				// another process changed the store underneath us
				return m.resync(ctx, g, numbers, domain.SeatStatusAvailable, err)
			}

			return err
		}

		reserved = make([]domain.ReservedSeat, 0, len(numbers))
		for _, n := range numbers {
			seat := g.seats[n]
			reserved = append(reserved, domain.ReservedSeat{Number: seat.Number, Type: seat.Type, Price: seat.Price})
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return reserved, changes, nil
}

// Confirm moves held seats to booked. It fails with ErrInvalidTransition,
// changing nothing, if any seat is not held.
func (m *Manager) Confirm(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error) {
	var changes []domain.SeatChange

	numbers := dedupe(seatNumbers)

	err := m.withGrid(ctx, showtimeID, func(g *Grid) error {
		conflict, err := g.firstConflict(numbers, domain.SeatStatusHeld)
		if err != nil {
			return err
		}

		if conflict != "" {
			return domain.ErrInvalidTransition
		}

		changes, err = m.transition(ctx, g, numbers, domain.SeatStatusHeld, domain.SeatStatusBooked)
		return err
	})

	return changes, err
}

// Release returns held seats to available. Seats that are already available
// or booked are left untouched, so releasing twice is harmless.
func (m *Manager) Release(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error) {
	var changes []domain.SeatChange

	err := m.withGrid(ctx, showtimeID, func(g *Grid) error {
		held := g.matching(dedupe(seatNumbers), domain.SeatStatusHeld)

		var err error
		changes, err = m.transition(ctx, g, held, domain.SeatStatusHeld, domain.SeatStatusAvailable)
		return err
	})

	return changes, err
}

// Revoke returns booked seats to available. It is only used when a paid
// booking is refunded.
func (m *Manager) Revoke(ctx context.Context, showtimeID int, seatNumbers []string) ([]domain.SeatChange, error) {
	var changes []domain.SeatChange

	err := m.withGrid(ctx, showtimeID, func(g *Grid) error {
		booked := g.matching(dedupe(seatNumbers), domain.SeatStatusBooked)

		var err error
		changes, err = m.transition(ctx, g, booked, domain.SeatStatusBooked, domain.SeatStatusAvailable)
		return err
	})

	return changes, err
}

// Snapshot returns a copy of the current seat grid of a showtime.
func (m *Manager) Snapshot(ctx context.Context, showtimeID int) (*domain.ShowtimeSeats, error) {
	var snapshot *domain.ShowtimeSeats

	err := m.withGrid(ctx, showtimeID, func(g *Grid) error {
		snapshot = g.snapshot()
		return nil
	})

	return snapshot, err
}

func (m *Manager) transition(
	ctx context.Context,
	g *Grid,
	numbers []string,
	from, to domain.SeatStatus) ([]domain.SeatChange, error) {

	if len(numbers) == 0 {
		return []domain.SeatChange{}, nil
	}

	changes := g.set(numbers, to)

	err := m.repo.UpdateSeatStatuses(ctx, g.showtimeID, numbers, from, to)
	if err != nil {
		g.set(numbers, from)

		if errors.Is(err, domain.ErrEditConflict) {
			return nil, m.resync(ctx, g, numbers, from, err)
		}

		return nil, err
	}

	return changes, nil
}

// resync reloads a grid whose store rows were changed by someone else and
// reports which seat caused the conflict.
func (m *Manager) resync(ctx context.Context, g *Grid, numbers []string, want domain.SeatStatus, cause error) error {
	err := g.load(ctx, m.repo)
	if err != nil {
		return errors.Join(cause, err)
	}

	conflict, err := g.firstConflict(numbers, want)
	if err != nil {
		return err
	}

	if conflict == "" {
		return cause
	}

	if want == domain.SeatStatusAvailable {
		return &domain.SeatUnavailableError{SeatNumber: conflict}
	}

	return domain.ErrInvalidTransition
}

func (m *Manager) withGrid(ctx context.Context, showtimeID int, fn func(g *Grid) error) error {
	m.mu.Lock()
	g, ok := m.grids[showtimeID]
	if !ok {
		g = newGrid(showtimeID)
		m.grids[showtimeID] = g
	}
	m.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.ensureLoaded(ctx, m.repo)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			m.forget(g)
		}

		return err
	}

	return fn(g)
}

func (m *Manager) forget(g *Grid) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grids[g.showtimeID] == g {
		delete(m.grids, g.showtimeID)
	}
}
