// Package signal is the event gateway: it owns the websocket endpoint,
// translates inbound frames into registry/coordinator calls and fans
// coordinator events out to every connection joined to the room.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/app"
	"github.com/sprintdeck/pokerd/internal/config"
	"github.com/sprintdeck/pokerd/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Controller is stateless with respect to rooms: membership and round
// state live behind the coordinators, connection bindings live in the
// session directory. It only keeps the transport endpoints.
type Controller struct {
	cfg      *config.Config
	clock    clockwork.Clock
	registry *app.Registry
	dir      *app.SessionDirectory
	limiter  *ConnRateLimiter

	mu    sync.RWMutex
	conns map[string]*WsConn
}

func NewController(cfg *config.Config, clock clockwork.Clock, registry *app.Registry, dir *app.SessionDirectory) *Controller {
	return &Controller{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		dir:      dir,
		limiter:  NewConnRateLimiter(cfg.RateLimit, cfg.RateInterval, clock),
		conns:    make(map[string]*WsConn),
	}
}

// WsConn wraps one websocket connection with a buffered outbound queue.
// Slow consumers get frames dropped instead of stalling the room.
type WsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and runs its pumps. The connection ID
// is minted server-side; the client token cookie is correlation only and
// never trusted for identity.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	connID := uuid.NewString()
	conn := &WsConn{
		id:   connID,
		conn: ws,
		send: make(chan []byte, ctl.cfg.SendBuffer),
	}

	ctl.mu.Lock()
	ctl.conns[connID] = conn
	ctl.mu.Unlock()

	log.Info().Str("module", "signal").Str("conn", connID).Str("client_token", c.GetString("client_token")).Msg("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
		ctl.handleTransportDisconnect(conn)
	}()
}

// handleTransportDisconnect turns a dropped transport into the
// grace-period leave path. Not an error: refresh, tab close and network
// blips all land here.
func (ctl *Controller) handleTransportDisconnect(conn *WsConn) {
	ctl.mu.Lock()
	delete(ctl.conns, conn.id)
	ctl.mu.Unlock()
	conn.Close()
	ctl.limiter.Forget(conn.id)

	b, ok := ctl.dir.Lookup(conn.id)
	if !ok {
		return
	}
	ctl.dir.Unbind(conn.id)

	coord, err := ctl.registry.Get(b.RoomCode)
	if err != nil {
		return
	}
	res, events, err := coord.Disconnect(conn.id)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", conn.id).Str("room", b.RoomCode).Msg("disconnect not applied")
		return
	}
	ctl.dir.Retain(b.RoomCode, res.UserName, res.VoterKey)
	ctl.Publish(b.RoomCode, events)
	log.Info().Str("module", "signal").Str("conn", conn.id).Str("room", b.RoomCode).Str("user", res.UserName).Msg("connection dropped, grace period started")
}

// frame is the outbound broadcast envelope.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Publish implements core.EventSink: room-scoped fan-out with optional
// single-target and excluded connections.
func (ctl *Controller) Publish(roomCode string, events []core.Event) {
	for _, ev := range events {
		b, err := json.Marshal(frame{Type: ev.Type, Payload: ev.Payload})
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("event", ev.Type).Msg("marshal broadcast")
			continue
		}
		if ev.To != "" {
			ctl.sendTo(ev.To, b)
			continue
		}
		for _, connID := range ctl.dir.ConnsInRoom(roomCode) {
			if connID == ev.Exclude {
				continue
			}
			ctl.sendTo(connID, b)
		}
	}
}

func (ctl *Controller) sendTo(connID string, b []byte) {
	ctl.mu.RLock()
	conn, ok := ctl.conns[connID]
	ctl.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", connID).Msg("dropping frame")
	}
}

func (ctl *Controller) sendJSON(conn *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", conn.id).Msg("sendJSON dropped")
	}
}
