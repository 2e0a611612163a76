package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/internal/contention"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/stretchr/testify/suite"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *recordingSink) Send(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	return true
}

func (r *recordingSink) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name
	}

	return names
}

func (r *recordingSink) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.events[len(r.events)-1]
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
}

type fullSink struct {
	recordingSink
}

func (f *fullSink) Send(Event) bool {
	return false
}

type GatewayTestSuite struct {
	suite.Suite
	now      time.Time
	registry *contention.Registry
	gateway  *Gateway
}

func (s *GatewayTestSuite) SetupTest() {
	s.now = time.Date(2025, 1, 14, 19, 0, 0, 0, time.UTC)
	s.registry = contention.NewRegistry(contention.WithClock(func() time.Time { return s.now }))
	s.gateway = NewGateway(s.registry, validator.NewValidator(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) connect(id string, userID int) (*Session, *recordingSink) {
	sink := &recordingSink{}

	var identity *domain.Identity
	if userID > 0 {
		identity = &domain.Identity{UserID: userID, DisplayName: id}
	}

	session := NewSession(id, identity, sink)
	s.gateway.Register(session)

	return session, sink
}

func message(event string, data any) InboundMessage {
	raw, _ := json.Marshal(data)
	return InboundMessage{Event: event, Data: raw}
}

func (s *GatewayTestSuite) TestUnauthenticatedConnectionIsRejected() {
	_, sink := s.connect("anon", 0)

	s.gateway.Handle("anon", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("anon", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))

	s.Equal([]string{EventError, EventError}, sink.names())
	s.Equal("UNAUTHORIZED", sink.last().Data.(ErrorPayload).Code)
	s.Empty(s.registry.Snapshot(1))
}

func (s *GatewayTestSuite) TestJoinSendsSnapshotOnlyToJoiner() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)

	s.gateway.Handle("alice", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	alice.reset()

	s.gateway.Handle("bob", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))

	s.Empty(alice.names())
	s.Equal([]string{EventInitialSeatMap}, bob.names())

	snapshot := bob.last().Data.(InitialSeatMap)
	s.Equal(1, snapshot.ShowtimeID)
	s.Require().Len(snapshot.Seats, 1)
	s.Equal("A1", snapshot.Seats[0].SeatNumber)
	s.Equal(1, snapshot.Seats[0].Contenders[0].UserID)
}

func (s *GatewayTestSuite) TestRejoinClearsPreviousSelections() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)

	s.gateway.Handle("alice", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("bob", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	bob.reset()
	alice.reset()

	// alice reconnects from another tab
	_, aliceTab := s.connect("alice-2", 1)
	s.gateway.Handle("alice-2", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))

	s.Equal([]string{EventSeatUpdate}, bob.names())
	update := bob.last().Data.(SeatUpdate)
	s.Equal(domain.ContentionAvailable, update.Status)
	s.Equal([]string{EventSeatUpdate, EventInitialSeatMap}, aliceTab.names())
	s.Empty(aliceTab.last().Data.(InitialSeatMap).Seats)
}

func (s *GatewayTestSuite) TestSelectBroadcastsOrderedContenders() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)
	_, carol := s.connect("carol", 3)

	for _, id := range []string{"alice", "bob", "carol"} {
		s.gateway.Handle(id, message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	}
	alice.reset()
	bob.reset()
	carol.reset()

	s.gateway.Handle("bob", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.now = s.now.Add(time.Second)
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.now = s.now.Add(time.Second)
	s.gateway.Handle("bob", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))

	for _, sink := range []*recordingSink{alice, bob, carol} {
		s.Equal([]string{EventSeatUpdate, EventSeatUpdate}, sink.names())

		update := sink.last().Data.(SeatUpdate)
		s.Equal(domain.ContentionSelected, update.Status)
		s.Equal(2, update.Contenders[0].UserID)
		s.Equal(1, update.Contenders[1].UserID)
	}
}

func (s *GatewayTestSuite) TestUnselectNotContendedSeat() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)

	s.gateway.Handle("alice", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("bob", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	alice.reset()
	bob.reset()

	s.gateway.Handle("alice", message(EventSeatUnselect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))

	s.Equal([]string{EventUnselectFailed}, alice.names())
	s.Empty(bob.names())
}

func (s *GatewayTestSuite) TestRejectsMalformedAndUnjoinedMessages() {
	tests := []struct {
		name     string
		msg      InboundMessage
		wantCode string
	}{
		{
			name:     "select before joining",
			msg:      message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}),
			wantCode: "NOT_JOINED",
		},
		{
			name:     "invalid seat number",
			msg:      message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "a-1"}),
			wantCode: "BAD_REQUEST",
		},
		{
			name:     "missing showtime",
			msg:      message(EventJoin, map[string]any{}),
			wantCode: "BAD_REQUEST",
		},
		{
			name:     "unknown event",
			msg:      message("seat:steal", nil),
			wantCode: "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			_, sink := s.connect("alice", 1)

			s.gateway.Handle("alice", tt.msg)

			s.Require().Equal([]string{EventError}, sink.names())
			s.Equal(tt.wantCode, sink.last().Data.(ErrorPayload).Code)
			s.Empty(s.registry.Snapshot(1))
		})
	}
}

func (s *GatewayTestSuite) TestDisconnectReleasesSoftHolds() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)

	s.gateway.Handle("alice", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("bob", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A2"}))
	bob.reset()

	s.gateway.Disconnect("alice")

	s.Equal([]string{EventSeatUpdate, EventSeatUpdate}, bob.names())
	s.Empty(s.registry.Snapshot(1))

	alice.reset()
	s.gateway.Broadcast(1, Event{Name: "ping"})
	s.Empty(alice.names())
}

func (s *GatewayTestSuite) TestLeaveDropsOnlyThatShowtime() {
	alice, _ := s.connect("alice", 1)

	s.Require().NoError(s.gateway.Join(alice, 1))
	s.Require().NoError(s.gateway.Join(alice, 2))
	s.Require().NoError(s.gateway.Select(alice, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.Require().NoError(s.gateway.Select(alice, SeatRequest{ShowtimeID: 2, SeatNumber: "A1"}))

	s.gateway.Leave(alice, 1)

	s.Empty(s.registry.Snapshot(1))
	s.Len(s.registry.Snapshot(2), 1)
	s.ErrorIs(s.gateway.Select(alice, SeatRequest{ShowtimeID: 1, SeatNumber: "A2"}), errNotJoined)
}

func (s *GatewayTestSuite) TestSeatsReservedNotifiesDisplacedUsers() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)
	_, carol := s.connect("carol", 3)

	for _, id := range []string{"alice", "bob", "carol"} {
		s.gateway.Handle(id, message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	}
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.gateway.Handle("bob", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	alice.reset()
	bob.reset()
	carol.reset()

	s.gateway.SeatsReserved(1, 1, []domain.SeatChange{
		{SeatNumber: "A1", Status: domain.SeatStatusHeld},
		{SeatNumber: "A2", Status: domain.SeatStatusHeld},
	})

	s.Equal([]string{EventSeatStatus}, alice.names())
	s.Equal([]string{EventUnavailableByOthers, EventSeatStatus}, bob.names())
	s.Equal([]string{EventSeatStatus}, carol.names())

	status := carol.last().Data.(SeatStatusUpdate)
	s.Equal([]SeatStatusChange{
		{SeatNumber: "A1", Status: domain.SeatStatusHeld},
		{SeatNumber: "A2", Status: domain.SeatStatusHeld},
	}, status.Seats)
	s.Empty(s.registry.Snapshot(1))
}

func (s *GatewayTestSuite) TestIdleSweep() {
	_, alice := s.connect("alice", 1)
	_, bob := s.connect("bob", 2)

	s.gateway.Handle("alice", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("bob", message(EventJoin, ShowtimeRequest{ShowtimeID: 1}))
	s.gateway.Handle("alice", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A1"}))
	s.now = s.now.Add(4 * time.Minute)
	s.gateway.Handle("bob", message(EventSeatSelect, SeatRequest{ShowtimeID: 1, SeatNumber: "A2"}))
	alice.reset()
	bob.reset()

	s.now = s.now.Add(2 * time.Minute)
	s.gateway.SweepIdle(5 * time.Minute)

	s.Equal([]string{EventSelectionTimedOut, EventSeatUpdate}, alice.names())
	s.Equal([]string{EventSeatUpdate}, bob.names())

	snapshot := s.registry.Snapshot(1)
	s.Require().Len(snapshot, 1)
	s.Equal("A2", snapshot[0].SeatNumber)
}

func (s *GatewayTestSuite) TestSlowConnectionIsClosed() {
	sink := &fullSink{}
	session := NewSession("slow", &domain.Identity{UserID: 9}, sink)
	s.gateway.Register(session)

	s.Require().NoError(s.gateway.Join(session, 1))

	s.True(sink.closed)
}
