package signal

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/core"
	"github.com/sprintdeck/pokerd/internal/domain"
)

func (ctl *Controller) handleCreateRoom(c *WsConn, env envelope, data []byte) {
	var p struct {
		HostName string `json:"hostName"`
		DeckType string `json:"deckType"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.nackMsg(c, env, "bad_payload", "failed to create room")
		return
	}
	p.HostName = strings.TrimSpace(p.HostName)
	if p.HostName == "" || len(p.HostName) > domain.MaxUsernameLen {
		ctl.nackMsg(c, env, "bad_payload", "a display name is required")
		return
	}
	deck, err := domain.ParseDeckType(p.DeckType)
	if err != nil {
		ctl.nackMsg(c, env, "bad_payload", "unknown deck type")
		return
	}

	coord, err := ctl.registry.CreateRoom(deck)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("create room")
		ctl.nack(c, env, err, "failed to create room")
		return
	}

	res, events, err := coord.Join(c.id, p.HostName, "")
	if err != nil {
		ctl.nack(c, env, err, "failed to create room")
		return
	}
	ctl.dir.Bind(c.id, coord.Code(), p.HostName, res.VoterKey)

	log.Info().Str("module", "signal").Str("conn", c.id).Str("room", coord.Code()).Str("host", p.HostName).Msg("room created")
	ctl.ack(c, env, map[string]any{"roomCode": coord.Code()})
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handleJoinRoom(c *WsConn, env envelope, data []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.nackMsg(c, env, "bad_payload", "failed to join room")
		return
	}
	p.UserName = strings.TrimSpace(p.UserName)
	if p.UserName == "" || len(p.UserName) > domain.MaxUsernameLen {
		ctl.nackMsg(c, env, "bad_payload", "a display name is required")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(p.RoomCode))

	coord, err := ctl.registry.Get(code)
	if err != nil {
		ctl.nack(c, env, err, "room not found")
		return
	}

	// The directory, not the client, decides whether this identity
	// already exists in the room.
	prior, _, revoked := ctl.dir.ResolveRejoin(code, p.UserName)
	if revoked {
		ctl.nack(c, env, core.ErrForbidden, "you were removed from this room")
		return
	}

	res, events, err := coord.Join(c.id, p.UserName, prior)
	if err != nil {
		ctl.nack(c, env, err, "failed to join room")
		return
	}
	ctl.dir.Bind(c.id, code, p.UserName, res.VoterKey)

	fields := map[string]any{
		"room":           res.Room,
		"user":           res.User,
		"stats":          res.Stats,
		"isReconnection": res.IsReconnection,
	}
	if res.HasVote {
		fields["userVote"] = res.UserVote
	}
	log.Info().Str("module", "signal").Str("conn", c.id).Str("room", code).Str("user", p.UserName).Bool("reconnection", res.IsReconnection).Msg("joined room")
	ctl.ack(c, env, fields)
	ctl.Publish(code, events)
}

func (ctl *Controller) handleLeaveRoom(c *WsConn, env envelope) {
	b, ok := ctl.dir.Lookup(c.id)
	if !ok {
		ctl.nack(c, env, core.ErrNotFound, "not in a room")
		return
	}
	coord, err := ctl.registry.Get(b.RoomCode)
	if err != nil {
		ctl.dir.Unbind(c.id)
		ctl.nack(c, env, err, "room not found")
		return
	}

	res, events, err := coord.Leave(c.id)
	ctl.dir.Unbind(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to leave room")
		return
	}
	// An explicit leave is final: nothing to resume.
	ctl.dir.ClearRetained(b.RoomCode, res.UserName)

	log.Info().Str("module", "signal").Str("conn", c.id).Str("room", b.RoomCode).Str("user", res.UserName).Msg("left room")
	ctl.ack(c, env, nil)
	ctl.Publish(b.RoomCode, events)
}

// boundRoom resolves the coordinator for operations that carry no room
// code of their own.
func (ctl *Controller) boundRoom(connID string) (*core.Coordinator, error) {
	b, ok := ctl.dir.Lookup(connID)
	if !ok {
		return nil, core.ErrNotFound
	}
	return ctl.registry.Get(b.RoomCode)
}
