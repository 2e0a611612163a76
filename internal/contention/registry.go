// Package contention tracks which connected users are currently looking at
// which seats. The registry is advisory: it never decides availability.
package contention

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

type Option func(*Registry)

// WithClock overrides the clock used to stamp new contenders.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

type Registry struct {
	mu  sync.Mutex
	now func() time.Time

	// showtime -> seat -> contenders ordered by JoinedAt
	entries map[int]map[string][]domain.Contender
}

// IdleRelease describes one seat touched by SweepIdle.
type IdleRelease struct {
	ShowtimeID int
	Seat       domain.SeatContention
	Removed    []domain.Contender
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:     time.Now,
		entries: make(map[int]map[string][]domain.Contender),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Select adds the contender to the seat. Selecting a seat the user already
// contends is a no-op and reports false.
func (r *Registry) Select(showtimeID int, seatNumber string, c domain.Contender) (domain.SeatContention, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seats, ok := r.entries[showtimeID]
	if !ok {
		seats = make(map[string][]domain.Contender)
		r.entries[showtimeID] = seats
	}

	contenders := seats[seatNumber]
	if containsUser(contenders, c.UserID) {
		return domain.NewSeatContention(seatNumber, clone(contenders)), false
	}

	if c.JoinedAt.IsZero() {
		c.JoinedAt = r.now()
	}

	contenders = append(contenders, c)
	sort.SliceStable(contenders, func(i, j int) bool {
		return contenders[i].JoinedAt.Before(contenders[j].JoinedAt)
	})

	seats[seatNumber] = contenders

	return domain.NewSeatContention(seatNumber, clone(contenders)), true
}

// Unselect removes the user from the seat. It reports false when the user was
// not contending it.
func (r *Registry) Unselect(showtimeID int, seatNumber string, userID int) (domain.SeatContention, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contenders := r.entries[showtimeID][seatNumber]
	if !containsUser(contenders, userID) {
		return domain.NewSeatContention(seatNumber, clone(contenders)), false
	}

	remaining := slices.DeleteFunc(contenders, func(c domain.Contender) bool {
		return c.UserID == userID
	})
	r.store(showtimeID, seatNumber, remaining)

	return domain.NewSeatContention(seatNumber, clone(remaining)), true
}

// DropConnection removes the connection from every seat of every showtime.
func (r *Registry) DropConnection(connectionID string) map[int][]domain.SeatContention {
	r.mu.Lock()
	defer r.mu.Unlock()

	updates := make(map[int][]domain.SeatContention)

	for showtimeID := range r.entries {
		changed := r.removeWhere(showtimeID, func(c domain.Contender) bool {
			return c.ConnectionID == connectionID
		})

		if len(changed) > 0 {
			updates[showtimeID] = changed
		}
	}

	return updates
}

func (r *Registry) DropConnectionFromShowtime(connectionID string, showtimeID int) []domain.SeatContention {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeWhere(showtimeID, func(c domain.Contender) bool {
		return c.ConnectionID == connectionID
	})
}

// DropUserFromShowtime clears every selection of the user in a showtime,
// whatever connection made it.
func (r *Registry) DropUserFromShowtime(userID int, showtimeID int) []domain.SeatContention {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeWhere(showtimeID, func(c domain.Contender) bool {
		return c.UserID == userID
	})
}

// SweepIdle removes every contender that joined more than maxAge ago.
func (r *Registry) SweepIdle(maxAge time.Duration) []IdleRelease {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)

	var releases []IdleRelease

	for _, showtimeID := range sortedKeys(r.entries) {
		seats := r.entries[showtimeID]

		for _, seatNumber := range sortedKeys(seats) {
			var removed []domain.Contender

			remaining := slices.DeleteFunc(seats[seatNumber], func(c domain.Contender) bool {
				if c.JoinedAt.Before(cutoff) {
					removed = append(removed, c)
					return true
				}
				return false
			})

			if len(removed) == 0 {
				continue
			}

			r.store(showtimeID, seatNumber, remaining)

			releases = append(releases, IdleRelease{
				ShowtimeID: showtimeID,
				Seat:       domain.NewSeatContention(seatNumber, clone(remaining)),
				Removed:    removed,
			})
		}
	}

	return releases
}

// ClearSeats drops the contention entries of the seats and returns the
// contenders that were displaced, keyed by seat.
func (r *Registry) ClearSeats(showtimeID int, seatNumbers []string) map[string][]domain.Contender {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced := make(map[string][]domain.Contender)

	seats := r.entries[showtimeID]
	for _, n := range seatNumbers {
		if contenders, ok := seats[n]; ok {
			displaced[n] = contenders
			delete(seats, n)
		}
	}

	if len(seats) == 0 {
		delete(r.entries, showtimeID)
	}

	return displaced
}

// Snapshot returns the current contention of a showtime ordered by seat.
func (r *Registry) Snapshot(showtimeID int) []domain.SeatContention {
	r.mu.Lock()
	defer r.mu.Unlock()

	seats := r.entries[showtimeID]

	snapshot := make([]domain.SeatContention, 0, len(seats))
	for _, n := range sortedKeys(seats) {
		snapshot = append(snapshot, domain.NewSeatContention(n, clone(seats[n])))
	}

	return snapshot
}

func (r *Registry) removeWhere(showtimeID int, match func(domain.Contender) bool) []domain.SeatContention {
	seats := r.entries[showtimeID]

	var changed []domain.SeatContention

	for _, n := range sortedKeys(seats) {
		before := len(seats[n])

		remaining := slices.DeleteFunc(seats[n], match)
		if len(remaining) == before {
			continue
		}

		r.store(showtimeID, n, remaining)
		changed = append(changed, domain.NewSeatContention(n, clone(remaining)))
	}

	return changed
}

// store writes the contenders of a seat, removing empty entries.
func (r *Registry) store(showtimeID int, seatNumber string, contenders []domain.Contender) {
	seats := r.entries[showtimeID]

	if len(contenders) > 0 {
		seats[seatNumber] = contenders
		return
	}

	delete(seats, seatNumber)
	if len(seats) == 0 {
		delete(r.entries, showtimeID)
	}
}

func containsUser(contenders []domain.Contender, userID int) bool {
	return slices.ContainsFunc(contenders, func(c domain.Contender) bool {
		return c.UserID == userID
	})
}

func clone(contenders []domain.Contender) []domain.Contender {
	return append([]domain.Contender(nil), contenders...)
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
