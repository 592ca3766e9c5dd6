package core

import "github.com/sprintdeck/pokerd/internal/domain"

// UserView is the read-only member projection sent over the wire.
// IsHost is derived at snapshot time, never stored.
type UserView struct {
	SocketID  string `json:"socketId"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
}

// RoomView is an immutable snapshot of one room's wire-visible state.
type RoomView struct {
	Code         string            `json:"code"`
	DeckType     domain.DeckType   `json:"deckType"`
	RoundState   domain.RoundState `json:"roundState"`
	Users        []UserView        `json:"users"`
	HostSocketID string            `json:"hostSocketId"`
}

func viewOf(u *domain.User, hostKey domain.VoterKey) UserView {
	return UserView{
		SocketID:  u.ConnectionID,
		Name:      u.Name,
		IsHost:    u.VoterKey == hostKey,
		Connected: u.Connected,
	}
}

// Snapshot projects the room into wire shape. Taken at the end of a
// mutation, inside the room's serialization, so it never races the next
// operation.
func Snapshot(r *domain.Room) RoomView {
	v := RoomView{
		Code:       r.Code,
		DeckType:   r.DeckType,
		RoundState: r.RoundState,
		Users:      make([]UserView, 0, len(r.Users)),
	}
	for _, u := range r.Users {
		v.Users = append(v.Users, viewOf(u, r.HostVoterKey))
	}
	if host, ok := r.Host(); ok {
		v.HostSocketID = host.ConnectionID
	}
	return v
}

// Broadcast event names, part of the wire contract.
const (
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventVotingStarted = "voting-started"
	EventVoteCast      = "vote-cast"
	EventVotesRevealed = "votes-revealed"
	EventRoundReset    = "round-reset"
	EventRoomUpdated   = "room-updated"
	EventRemoved       = "removed"
)

// Event is one outbound broadcast produced by a coordinator operation.
// The coordinator never touches transport; the gateway owns fan-out.
type Event struct {
	Type string
	// To restricts delivery to a single connection; empty means every
	// connection currently joined to the room.
	To string
	// Exclude drops one connection from a room-wide fan-out (the
	// caller already carries the same information in its ack).
	Exclude string
	Payload any
}

// EventSink receives events produced outside a caller's control flow
// (grace-period expiry, sweeps). Implemented by the gateway.
type EventSink interface {
	Publish(roomCode string, events []Event)
}

type UserJoinedPayload struct {
	User           UserView `json:"user"`
	IsReconnection bool     `json:"isReconnection"`
}

type UserLeftPayload struct {
	UserName string `json:"userName"`
	NewHost  string `json:"newHost,omitempty"`
	Stats    Stats  `json:"stats"`
}

type VotingStartedPayload struct {
	RoundState domain.RoundState `json:"roundState"`
}

type VoteCastPayload struct {
	UserName string      `json:"userName"`
	Vote     domain.Card `json:"vote"`
	Stats    Stats       `json:"stats"`
}

type VotesRevealedPayload struct {
	RoundState domain.RoundState      `json:"roundState"`
	Stats      Stats                  `json:"stats"`
	Votes      map[string]domain.Card `json:"votes"`
}

type RoundResetPayload struct {
	RoundState domain.RoundState `json:"roundState"`
}

type RoomUpdatedPayload struct {
	RoomView
	NewHostName string `json:"newHostName,omitempty"`
	Stats       Stats  `json:"stats"`
}
