package booking

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

type memorySeats struct {
	mu     sync.Mutex
	grids  map[int]*domain.ShowtimeSeats
	heldAt map[seatKey]time.Time
	writes int
	now    func() time.Time

	// releaseErr fails every write back to available
	releaseErr error
}

type seatKey struct {
	showtimeID int
	number     string
}

func newMemorySeats(grids ...*domain.ShowtimeSeats) *memorySeats {
	s := &memorySeats{
		grids:  make(map[int]*domain.ShowtimeSeats),
		heldAt: make(map[seatKey]time.Time),
		now:    time.Now,
	}
	for _, g := range grids {
		s.grids[g.ShowtimeID] = g
	}

	return s
}

func (s *memorySeats) GetSeatsByShowtime(_ context.Context, showtimeID int) (*domain.ShowtimeSeats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grids[showtimeID]
	if !ok {
		return &domain.ShowtimeSeats{ShowtimeID: showtimeID}, nil
	}

	cp := *g
	cp.Seats = slices.Clone(g.Seats)

	return &cp, nil
}

func (s *memorySeats) UpdateSeatStatuses(
	_ context.Context,
	showtimeID int,
	seatNumbers []string,
	from, to domain.SeatStatus) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if to == domain.SeatStatusAvailable && s.releaseErr != nil {
		return s.releaseErr
	}

	g := s.grids[showtimeID]

	for _, n := range seatNumbers {
		i := slices.IndexFunc(g.Seats, func(seat domain.Seat) bool { return seat.Number == n })
		if i < 0 || g.Seats[i].Status != from {
			return domain.ErrEditConflict
		}
	}

	for _, n := range seatNumbers {
		i := slices.IndexFunc(g.Seats, func(seat domain.Seat) bool { return seat.Number == n })
		g.Seats[i].Status = to

		if to == domain.SeatStatusHeld {
			s.heldAt[seatKey{showtimeID, n}] = s.now()
		} else {
			delete(s.heldAt, seatKey{showtimeID, n})
		}
	}

	s.writes++

	return nil
}

func (s *memorySeats) status(showtimeID int, seatNumber string) domain.SeatStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seat := range s.grids[showtimeID].Seats {
		if seat.Number == seatNumber {
			return seat.Status
		}
	}

	return ""
}

func (s *memorySeats) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

type memoryBookings struct {
	mu        sync.Mutex
	nextID    int
	bookings  map[int]domain.Booking
	createErr error
	updates   int

	// createErrs are returned by the next Create calls, one per call
	createErrs []error
	// updateErrs fails status updates of the given bookings
	updateErrs map[int]error
	seats      *memorySeats
}

func newMemoryBookings() *memoryBookings {
	return &memoryBookings{nextID: 1, bookings: make(map[int]domain.Booking)}
}

func (m *memoryBookings) Create(_ context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}

	b.ID = m.nextID
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.nextID++

	m.bookings[b.ID] = copyBooking(*b)

	return nil
}

func (m *memoryBookings) GetById(_ context.Context, id int) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	cp := copyBooking(b)
	return &cp, nil
}

func (m *memoryBookings) GetByUserId(
	_ context.Context,
	userId int,
	status *domain.BookingStatus,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Booking
	for _, b := range m.bookings {
		if b.UserID == userId && (status == nil || b.Status == *status) {
			result = append(result, copyBooking(b))
		}
	}

	slices.SortFunc(result, func(a, b domain.Booking) int { return b.ID - a.ID })

	return result, domain.NewMetadata(len(result), pagination.Page, pagination.PageSize), nil
}

func (m *memoryBookings) UpdateStatus(_ context.Context, u domain.BookingStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateErrs[u.BookingID]; err != nil {
		return err
	}

	b, ok := m.bookings[u.BookingID]
	if !ok {
		return domain.ErrRecordNotFound
	}

	if b.Status != u.From {
		return domain.ErrInvalidTransition
	}

	b.Status = u.To
	if u.PaymentStatus != "" {
		b.PaymentStatus = u.PaymentStatus
	}
	if u.ProviderReference != nil {
		b.ProviderReference = u.ProviderReference
	}
	if u.PaidAt != nil {
		b.PaidAt = u.PaidAt
	}

	m.bookings[b.ID] = b
	m.updates++

	return nil
}

func (m *memoryBookings) GetExpiredPending(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Booking
	for _, b := range m.bookings {
		if b.IsExpired(now) {
			result = append(result, copyBooking(b))
		}
	}

	slices.SortFunc(result, func(a, b domain.Booking) int { return a.ID - b.ID })

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetOrphanedHolds joins against the seat fake the way the SQL query joins
// showtime_seats with booking_seats.
func (m *memoryBookings) GetOrphanedHolds(_ context.Context, heldBefore time.Time) ([]domain.OrphanedHold, error) {
	m.mu.Lock()
	owned := make(map[seatKey]bool)
	for _, b := range m.bookings {
		if !b.IsPending() {
			continue
		}
		for _, n := range b.SeatNumbers() {
			owned[seatKey{b.ShowtimeID, n}] = true
		}
	}
	m.mu.Unlock()

	m.seats.mu.Lock()
	defer m.seats.mu.Unlock()

	byShowtime := make(map[int][]string)
	for key, at := range m.seats.heldAt {
		if at.Before(heldBefore) && !owned[key] {
			byShowtime[key.showtimeID] = append(byShowtime[key.showtimeID], key.number)
		}
	}

	var holds []domain.OrphanedHold
	for showtimeID, seats := range byShowtime {
		slices.Sort(seats)
		holds = append(holds, domain.OrphanedHold{ShowtimeID: showtimeID, SeatNumbers: seats})
	}

	slices.SortFunc(holds, func(a, b domain.OrphanedHold) int { return a.ShowtimeID - b.ShowtimeID })

	return holds, nil
}

func (m *memoryBookings) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updates
}

func (m *memoryBookings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.bookings)
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Seats = slices.Clone(b.Seats)
	return b
}

type seatCall struct {
	ShowtimeID int
	UserID     int
	Changes    []domain.SeatChange
}

type recordingNotifier struct {
	mu       sync.Mutex
	reserved []seatCall
	changed  []seatCall
}

func (n *recordingNotifier) SeatsReserved(showtimeID, userID int, changes []domain.SeatChange) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.reserved = append(n.reserved, seatCall{ShowtimeID: showtimeID, UserID: userID, Changes: changes})
}

func (n *recordingNotifier) SeatsChanged(showtimeID int, changes []domain.SeatChange) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.changed = append(n.changed, seatCall{ShowtimeID: showtimeID, Changes: changes})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any

	// onPublish runs before the event is recorded
	onPublish func(event any)
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	if p.onPublish != nil {
		p.onPublish(event)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []any {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.events)
}

const (
	testShowtimeID = 10
	testMovieID    = 3
)

func testShowtime() *domain.ShowtimeSeats {
	price := decimal.NewFromInt(100)

	return &domain.ShowtimeSeats{
		ShowtimeID: testShowtimeID,
		MovieID:    testMovieID,
		StartTime:  time.Date(2025, 1, 14, 20, 0, 0, 0, time.UTC),
		Seats: []domain.Seat{
			{Number: "A1", Row: "A", Type: domain.SeatTypeStandard, Price: price, Status: domain.SeatStatusAvailable},
			{Number: "A2", Row: "A", Type: domain.SeatTypeStandard, Price: price, Status: domain.SeatStatusAvailable},
			{Number: "A3", Row: "A", Type: domain.SeatTypeStandard, Price: price, Status: domain.SeatStatusAvailable},
			{Number: "B1", Row: "B", Type: domain.SeatTypeVIP, Price: decimal.NewFromInt(150), Status: domain.SeatStatusAvailable},
		},
	}
}
