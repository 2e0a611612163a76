// Package realtime pushes seat contention and seat status changes to every
// connection watching a showtime.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/contention"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Sink is the transport side of a session.
type Sink interface {
	// Send queues the event without blocking and reports false when the
	// connection cannot keep up.
	Send(ev Event) bool
	Close()
}

type Session struct {
	ID       string
	Identity *domain.Identity

	sink Sink

	mu        sync.Mutex
	showtimes map[int]struct{}
}

func NewSession(id string, identity *domain.Identity, sink Sink) *Session {
	return &Session{
		ID:        id,
		Identity:  identity,
		sink:      sink,
		showtimes: make(map[int]struct{}),
	}
}

func (s *Session) send(ev Event) {
	if !s.sink.Send(ev) {
		s.sink.Close()
	}
}

func (s *Session) joined(showtimeID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.showtimes[showtimeID]
	return ok
}

func (s *Session) client() client {
	return client{ConnectionID: s.ID, Identity: *s.Identity}
}

// Gateway owns the contention registry and the showtime rooms. Every
// registry mutation and the fan-out of its resulting events happen under one
// ordering lock, so all members of a room observe updates in the same order.
type Gateway struct {
	registry  *contention.Registry
	validator *validator.Validate
	logger    *slog.Logger

	order sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[int]map[string]*Session

	connections metric.Int64UpDownCounter
}

func NewGateway(registry *contention.Registry, validator *validator.Validate, logger *slog.Logger) *Gateway {
	connections, err := otel.Meter("cinex-booking/realtime").Int64UpDownCounter(
		"realtime.connections",
		metric.WithDescription("Number of open realtime connections"),
	)
	if err != nil {
		logger.Warn("failed to create connections counter", "error", err)
	}

	return &Gateway{
		registry:    registry,
		validator:   validator,
		logger:      logger,
		sessions:    make(map[string]*Session),
		rooms:       make(map[int]map[string]*Session),
		connections: connections,
	}
}

func (g *Gateway) Register(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()

	if g.connections != nil {
		g.connections.Add(context.Background(), 1)
	}
}

// Handle decodes one inbound message of a session and applies it.
func (g *Gateway) Handle(sessionID string, msg InboundMessage) {
	s := g.session(sessionID)
	if s == nil {
		return
	}

	if s.Identity == nil {
		s.send(errorEvent("UNAUTHORIZED", domain.ErrUnauthorized.Error()))
		return
	}

	var err error

	switch msg.Event {
	case EventJoin:
		var req ShowtimeRequest
		if err = g.decode(msg.Data, &req); err == nil {
			err = g.Join(s, req.ShowtimeID)
		}
	case EventLeave:
		var req ShowtimeRequest
		if err = g.decode(msg.Data, &req); err == nil {
			g.Leave(s, req.ShowtimeID)
		}
	case EventSeatSelect:
		var req SeatRequest
		if err = g.decode(msg.Data, &req); err == nil {
			err = g.Select(s, req)
		}
	case EventSeatUnselect:
		var req SeatRequest
		if err = g.decode(msg.Data, &req); err == nil {
			err = g.Unselect(s, req)
		}
	default:
		err = fmt.Errorf("unknown event %q", msg.Event)
	}

	if err != nil {
		g.logger.Debug("rejected realtime message", "connection_id", s.ID, "event", msg.Event, "error", err)
		s.send(errorEvent(errorCode(err), err.Error()))
	}
}

// Join adds the session to the showtime room and sends it the current
// contention snapshot.
func (g *Gateway) Join(s *Session, showtimeID int) error {
	if s.Identity == nil {
		return domain.ErrUnauthorized
	}

	g.mu.Lock()
	members, ok := g.rooms[showtimeID]
	if !ok {
		members = make(map[string]*Session)
		g.rooms[showtimeID] = members
	}
	members[s.ID] = s
	g.mu.Unlock()

	s.mu.Lock()
	s.showtimes[showtimeID] = struct{}{}
	s.mu.Unlock()

	g.apply(s, func() []Outgoing {
		return handleJoin(g.registry, s.client(), ShowtimeRequest{ShowtimeID: showtimeID})
	})

	return nil
}

// Leave removes the session from the room and drops its selections there.
func (g *Gateway) Leave(s *Session, showtimeID int) {
	if s.Identity != nil {
		g.apply(s, func() []Outgoing {
			return handleLeave(g.registry, s.client(), ShowtimeRequest{ShowtimeID: showtimeID})
		})
	}

	s.mu.Lock()
	delete(s.showtimes, showtimeID)
	s.mu.Unlock()

	g.mu.Lock()
	g.removeMember(showtimeID, s.ID)
	g.mu.Unlock()
}

func (g *Gateway) Select(s *Session, req SeatRequest) error {
	if s.Identity == nil {
		return domain.ErrUnauthorized
	}

	if !s.joined(req.ShowtimeID) {
		return errNotJoined
	}

	g.apply(s, func() []Outgoing {
		return handleSelect(g.registry, s.client(), req)
	})

	return nil
}

func (g *Gateway) Unselect(s *Session, req SeatRequest) error {
	if s.Identity == nil {
		return domain.ErrUnauthorized
	}

	if !s.joined(req.ShowtimeID) {
		return errNotJoined
	}

	g.apply(s, func() []Outgoing {
		return handleUnselect(g.registry, s.client(), req)
	})

	return nil
}

// Disconnect drops every soft hold of the connection. Bookings are not
// affected.
func (g *Gateway) Disconnect(sessionID string) {
	s := g.session(sessionID)
	if s == nil {
		return
	}

	g.apply(s, func() []Outgoing {
		return handleDisconnect(g.registry, sessionID)
	})

	g.mu.Lock()
	delete(g.sessions, sessionID)
	s.mu.Lock()
	for showtimeID := range s.showtimes {
		g.removeMember(showtimeID, sessionID)
	}
	s.showtimes = make(map[int]struct{})
	s.mu.Unlock()
	g.mu.Unlock()

	if g.connections != nil {
		g.connections.Add(context.Background(), -1)
	}
}

// Broadcast sends the event to every member of the showtime room.
func (g *Gateway) Broadcast(showtimeID int, ev Event) {
	g.apply(nil, func() []Outgoing {
		return []Outgoing{sendToRoom(showtimeID, ev)}
	})
}

// SeatsReserved is called once a booking captured seats.
func (g *Gateway) SeatsReserved(showtimeID, userID int, changes []domain.SeatChange) {
	g.apply(nil, func() []Outgoing {
		return handleSeatsReserved(g.registry, showtimeID, userID, changes)
	})
}

// SeatsChanged broadcasts authoritative seat status changes.
func (g *Gateway) SeatsChanged(showtimeID int, changes []domain.SeatChange) {
	if len(changes) == 0 {
		return
	}

	g.Broadcast(showtimeID, seatStatusEvent(showtimeID, changes))
}

// SweepIdle reclaims selections older than maxAge.
func (g *Gateway) SweepIdle(maxAge time.Duration) {
	g.apply(nil, func() []Outgoing {
		return handleIdleSweep(g.registry, maxAge)
	})
}

// RunIdleSweeper calls SweepIdle every interval until ctx is done.
func (g *Gateway) RunIdleSweeper(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.SweepIdle(maxAge)
		}
	}
}

// Close disconnects every session. It is called on shutdown.
func (g *Gateway) Close() {
	g.mu.RLock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.RUnlock()

	for _, s := range sessions {
		s.sink.Close()
		g.Disconnect(s.ID)
	}
}

// Snapshot returns the contention of a showtime.
func (g *Gateway) Snapshot(showtimeID int) []domain.SeatContention {
	g.order.Lock()
	defer g.order.Unlock()

	return g.registry.Snapshot(showtimeID)
}

func (g *Gateway) apply(sender *Session, fn func() []Outgoing) {
	g.order.Lock()
	defer g.order.Unlock()

	g.deliver(sender, fn())
}

func (g *Gateway) deliver(sender *Session, out []Outgoing) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, o := range out {
		switch o.target {
		case toSender:
			if sender != nil {
				sender.send(o.Event)
			}
		case toRoom:
			for _, member := range g.rooms[o.ShowtimeID] {
				member.send(o.Event)
			}
		case toConnection:
			if s, ok := g.sessions[o.ConnectionID]; ok {
				s.send(o.Event)
			}
		}
	}
}

func (g *Gateway) session(id string) *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.sessions[id]
}

// removeMember must be called with g.mu held.
func (g *Gateway) removeMember(showtimeID int, sessionID string) {
	members, ok := g.rooms[showtimeID]
	if !ok {
		return
	}

	delete(members, sessionID)
	if len(members) == 0 {
		delete(g.rooms, showtimeID)
	}
}

func (g *Gateway) decode(data json.RawMessage, dst any) error {
	err := json.Unmarshal(data, dst)
	if err != nil {
		return fmt.Errorf("%w: %s", errBadMessage, err)
	}

	err = g.validator.Struct(dst)
	if err != nil {
		return fmt.Errorf("%w: %s", errBadMessage, err)
	}

	return nil
}

var (
	errBadMessage = errors.New("malformed message")
	errNotJoined  = errors.New("join the showtime before selecting seats")
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, errNotJoined):
		return "NOT_JOINED"
	default:
		return "BAD_REQUEST"
	}
}
