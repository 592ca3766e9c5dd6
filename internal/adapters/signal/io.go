package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *WsConn) {
	defer c.Close()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	readWait := ctl.cfg.PingPeriod + ctl.cfg.WriteTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", c.id).Msg("readPump closed")
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
			ctl.dispatch(c, data)
		}
	}
}

// envelope is the inbound frame header. Seq is echoed in the ack so the
// client can pair callbacks to requests.
type envelope struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`
}

func (ctl *Controller) dispatch(c *WsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", c.id).Msg("bad json")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "bad_payload"})
		return
	}

	if !ctl.limiter.Allow(c.id) {
		log.Warn().Str("module", "signal").Str("conn", c.id).Str("type", env.Type).Msg("rate limited")
		ctl.nackMsg(c, env, "rate_limited", "too many requests")
		return
	}

	switch env.Type {
	case "create-room":
		ctl.handleCreateRoom(c, env, data)
	case "join-room":
		ctl.handleJoinRoom(c, env, data)
	case "leave-room":
		ctl.handleLeaveRoom(c, env)
	case "cast-vote":
		ctl.handleCastVote(c, env, data)
	case "start-voting":
		ctl.handleStartVoting(c, env)
	case "reveal-votes":
		ctl.handleRevealVotes(c, env)
	case "reset-round":
		ctl.handleResetRound(c, env)
	case "make-host":
		ctl.handleMakeHost(c, env, data)
	case "remove-user":
		ctl.handleRemoveUser(c, env, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
		ctl.nackMsg(c, env, "bad_payload", "unknown event type")
	}
}

// ack sends a success acknowledgement, merging any op-specific fields.
func (ctl *Controller) ack(c *WsConn, env envelope, fields map[string]any) {
	msg := map[string]any{
		"type":    "ack",
		"for":     env.Type,
		"seq":     env.Seq,
		"success": true,
	}
	for k, v := range fields {
		msg[k] = v
	}
	ctl.sendJSON(c, msg)
}

// nack reports a typed failure to the caller only; failures are never
// broadcast.
func (ctl *Controller) nack(c *WsConn, env envelope, err error, message string) {
	ctl.nackMsg(c, env, core.ReasonCode(err), message)
}

func (ctl *Controller) nackMsg(c *WsConn, env envelope, code, message string) {
	ctl.sendJSON(c, map[string]any{
		"type":    "ack",
		"for":     env.Type,
		"seq":     env.Seq,
		"success": false,
		"error":   code,
		"message": message,
	})
}
