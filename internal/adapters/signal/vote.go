package signal

import (
	"encoding/json"
	"strconv"

	"github.com/sprintdeck/pokerd/internal/domain"
)

// cardOf normalizes the wire vote value: the client sends numeric cards
// as JSON numbers and the rest as strings.
func cardOf(raw json.RawMessage) (domain.Card, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.Card(s), true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return domain.Card(strconv.FormatFloat(n, 'f', -1, 64)), true
	}
	return "", false
}

func (ctl *Controller) handleCastVote(c *WsConn, env envelope, data []byte) {
	var p struct {
		Vote json.RawMessage `json:"vote"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.Vote) == 0 {
		ctl.nackMsg(c, env, "bad_payload", "failed to cast vote")
		return
	}
	card, ok := cardOf(p.Vote)
	if !ok {
		ctl.nackMsg(c, env, "bad_payload", "failed to cast vote")
		return
	}

	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to cast vote")
		return
	}
	_, events, err := coord.CastVote(c.id, card)
	if err != nil {
		ctl.nack(c, env, err, "failed to cast vote")
		return
	}
	ctl.ack(c, env, nil)
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handleStartVoting(c *WsConn, env envelope) {
	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to start voting")
		return
	}
	stats, events, err := coord.StartVoting(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to start voting")
		return
	}
	ctl.ack(c, env, map[string]any{"stats": stats})
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handleRevealVotes(c *WsConn, env envelope) {
	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to reveal votes")
		return
	}
	events, err := coord.RevealVotes(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to reveal votes")
		return
	}
	ctl.ack(c, env, nil)
	ctl.Publish(coord.Code(), events)
}

func (ctl *Controller) handleResetRound(c *WsConn, env envelope) {
	coord, err := ctl.boundRoom(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to reset round")
		return
	}
	events, err := coord.ResetRound(c.id)
	if err != nil {
		ctl.nack(c, env, err, "failed to reset round")
		return
	}
	ctl.ack(c, env, nil)
	ctl.Publish(coord.Code(), events)
}
