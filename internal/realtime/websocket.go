package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Server upgrades authenticated HTTP requests to websocket connections and
// attaches them to the gateway.
type Server struct {
	gateway  *Gateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(gateway *Gateway, logger *slog.Logger, allowedOrigins []string) *Server {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		}
	}

	return &Server{
		gateway:  gateway,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Serve blocks until the connection is closed. When showtimeID is positive
// the connection joins that showtime right away.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, identity *domain.Identity, showtimeID int) error {
	if identity == nil {
		return domain.ErrUnauthorized
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &wsClient{
		conn: conn,
		send: make(chan Event, sendBufferSize),
		done: make(chan struct{}),
	}

	session := NewSession(uuid.NewString(), identity, c)
	s.gateway.Register(session)

	logger := s.logger.With("connection_id", session.ID, "user_id", identity.UserID)
	logger.Info("realtime connection opened")

	go c.writePump(logger)

	if showtimeID > 0 {
		_ = s.gateway.Join(session, showtimeID)
	}

	c.readPump(s.gateway, session.ID, logger)

	s.gateway.Disconnect(session.ID)
	logger.Info("realtime connection closed")

	return nil
}

type wsClient struct {
	conn *websocket.Conn
	send chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsClient) Send(ev Event) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsClient) readPump(gateway *Gateway, sessionID string, logger *slog.Logger) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage

		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if isDecodeError(err) {
				c.Send(errorEvent("BAD_REQUEST", "message must be a JSON object"))
				continue
			}

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("realtime connection closed unexpectedly", "error", err)
			}

			return
		}

		gateway.Handle(sessionID, msg)
	}
}

func (c *wsClient) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteJSON(ev)
			if err != nil {
				logger.Debug("failed to write realtime event", "event", ev.Name, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
