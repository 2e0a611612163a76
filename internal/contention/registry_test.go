package contention

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type RegistryTestSuite struct {
	suite.Suite
	clock    *fakeClock
	registry *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2025, 1, 14, 19, 0, 0, 0, time.UTC)}
	s.registry = NewRegistry(WithClock(s.clock.Now))
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func contender(userID int, conn string) domain.Contender {
	return domain.Contender{UserID: userID, ConnectionID: conn, DisplayName: "user"}
}

func userIDs(contenders []domain.Contender) []int {
	ids := make([]int, len(contenders))
	for i, c := range contenders {
		ids[i] = c.UserID
	}

	return ids
}

func (s *RegistryTestSuite) TestSelectOrdersByJoinTime() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.clock.Advance(time.Second)
	s.registry.Select(1, "A1", contender(2, "c2"))
	s.clock.Advance(time.Second)
	seat, changed := s.registry.Select(1, "A1", contender(3, "c3"))

	s.True(changed)
	s.Equal(domain.ContentionSelected, seat.Status)
	s.Equal([]int{1, 2, 3}, userIDs(seat.Contenders))

	// the primary holder leaves, the next earliest takes over
	seat, ok := s.registry.Unselect(1, "A1", 1)
	s.True(ok)
	s.Equal([]int{2, 3}, userIDs(seat.Contenders))
}

func (s *RegistryTestSuite) TestSelectKeepsExplicitJoinTime() {
	early := s.clock.now.Add(-time.Minute)

	s.registry.Select(1, "A1", contender(1, "c1"))
	seat, _ := s.registry.Select(1, "A1", domain.Contender{UserID: 2, ConnectionID: "c2", JoinedAt: early})

	s.Equal([]int{2, 1}, userIDs(seat.Contenders))
}

func (s *RegistryTestSuite) TestSelectTwiceIsNoop() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.clock.Advance(time.Second)

	seat, changed := s.registry.Select(1, "A1", contender(1, "c9"))

	s.False(changed)
	s.Len(seat.Contenders, 1)
	s.Equal("c1", seat.Contenders[0].ConnectionID)
}

func (s *RegistryTestSuite) TestUnselect() {
	tests := []struct {
		name       string
		userID     int
		wantOk     bool
		wantStatus domain.ContentionStatus
		wantUsers  []int
	}{
		{
			name:       "should report false for a user who is not contending",
			userID:     42,
			wantOk:     false,
			wantStatus: domain.ContentionSelected,
			wantUsers:  []int{1},
		},
		{
			name:       "should remove the entry once the last contender leaves",
			userID:     1,
			wantOk:     true,
			wantStatus: domain.ContentionAvailable,
			wantUsers:  []int{},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			s.registry.Select(1, "A1", contender(1, "c1"))

			seat, ok := s.registry.Unselect(1, "A1", tt.userID)

			s.Equal(tt.wantOk, ok)
			s.Equal(tt.wantStatus, seat.Status)
			s.Equal(tt.wantUsers, userIDs(seat.Contenders))
		})
	}

	s.Empty(s.registry.Snapshot(1))
	s.Empty(s.registry.entries)
}

func (s *RegistryTestSuite) TestDropConnection() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.registry.Select(1, "A1", contender(2, "c2"))
	s.registry.Select(1, "A2", contender(1, "c1"))
	s.registry.Select(2, "C5", contender(1, "c1"))
	s.registry.Select(2, "C6", contender(3, "c3"))

	updates := s.registry.DropConnection("c1")

	want := map[int][]domain.SeatContention{
		1: {
			domain.NewSeatContention("A1", []domain.Contender{s.registry.entries[1]["A1"][0]}),
			domain.NewSeatContention("A2", nil),
		},
		2: {
			domain.NewSeatContention("C5", nil),
		},
	}

	if diff := cmp.Diff(want, updates); diff != "" {
		s.T().Errorf("updates mismatch (-want +got):\n%s", diff)
	}

	for showtimeID, seats := range s.registry.entries {
		for seat, contenders := range seats {
			for _, c := range contenders {
				s.NotEqual("c1", c.ConnectionID, "showtime %d seat %s still held by dropped connection", showtimeID, seat)
			}
		}
	}
}

func (s *RegistryTestSuite) TestDropConnectionFromShowtimeOnlyTouchesThatShowtime() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.registry.Select(2, "A1", contender(1, "c1"))

	changed := s.registry.DropConnectionFromShowtime("c1", 1)

	s.Equal([]domain.SeatContention{domain.NewSeatContention("A1", nil)}, changed)
	s.Len(s.registry.Snapshot(2), 1)
}

func (s *RegistryTestSuite) TestDropUserFromShowtime() {
	s.registry.Select(1, "A1", contender(1, "old-conn"))
	s.registry.Select(1, "A2", contender(2, "c2"))

	changed := s.registry.DropUserFromShowtime(1, 1)

	s.Equal([]domain.SeatContention{domain.NewSeatContention("A1", nil)}, changed)
	s.Equal([]int{2}, userIDs(s.registry.Snapshot(1)[0].Contenders))
}

func (s *RegistryTestSuite) TestSweepIdle() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.clock.Advance(4 * time.Minute)
	s.registry.Select(1, "A1", contender(2, "c2"))
	s.registry.Select(1, "A2", contender(2, "c2"))
	s.clock.Advance(2 * time.Minute)

	releases := s.registry.SweepIdle(5 * time.Minute)

	s.Require().Len(releases, 1)
	s.Equal(1, releases[0].ShowtimeID)
	s.Equal("A1", releases[0].Seat.SeatNumber)
	s.Equal([]int{2}, userIDs(releases[0].Seat.Contenders))
	s.Equal([]int{1}, userIDs(releases[0].Removed))

	s.clock.Advance(4 * time.Minute)
	releases = s.registry.SweepIdle(5 * time.Minute)

	s.Len(releases, 2)
	s.Empty(s.registry.Snapshot(1))
}

func (s *RegistryTestSuite) TestClearSeats() {
	s.registry.Select(1, "A1", contender(1, "c1"))
	s.registry.Select(1, "A1", contender(2, "c2"))
	s.registry.Select(1, "A3", contender(3, "c3"))

	displaced := s.registry.ClearSeats(1, []string{"A1", "A2"})

	s.Len(displaced, 1)
	s.Equal([]int{1, 2}, userIDs(displaced["A1"]))

	snapshot := s.registry.Snapshot(1)
	s.Require().Len(snapshot, 1)
	s.Equal("A3", snapshot[0].SeatNumber)
}
