package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handleMakeHost(c *WsConn, env envelope, data []byte) {
	var p struct {
		TargetConnectionID string `json:"targetConnectionId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetConnectionID == "" {
		ctl.nackMsg(c, env, "bad_payload", "failed to transfer host")
		return
	}
	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to transfer host")
		return
	}
	events, err := coord.MakeHost(c.id, p.TargetConnectionID)
	if err != nil {
		ctl.nack(c, env, err, "failed to transfer host")
		return
	}
	ctl.ack(c, env, nil)
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handleRemoveUser(c *WsConn, env envelope, data []byte) {
	var p struct {
		TargetConnectionID string `json:"targetConnectionId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TargetConnectionID == "" {
		ctl.nackMsg(c, env, "bad_payload", "failed to remove user")
		return
	}
	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to remove user")
		return
	}
	res, events, err := coord.RemoveUser(c.id, p.TargetConnectionID)
	if err != nil {
		ctl.nack(c, env, err, "failed to remove user")
		return
	}

	// The kicked identity stays banned for the grace period so it
	// cannot resume under the same name.
	ctl.dir.Unbind(res.ConnID)
	ctl.dir.Revoke(coord.Code(), res.UserName)

	log.Info().Str("module", "signal").Str("room", coord.Code()).Str("user", res.UserName).Msg("user removed by host")
	ctl.ack(c, env, nil)
	// The event list carries the terminal "removed" frame addressed to
	// the kicked connection; targeted delivery bypasses the directory,
	// so unbinding first is safe.
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handlePing(c *WsConn) {
	ctl.sendJSON(c, map[string]any{"type": "pong"})
}
