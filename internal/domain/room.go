package domain

import (
	"errors"
	"fmt"
	"time"
)

type RoundState string

const (
	RoundIdle     RoundState = "idle"
	RoundVoting   RoundState = "voting"
	RoundRevealed RoundState = "revealed"
)

var ErrInvariant = errors.New("room invariant violated")

// Room is one estimation room. It is owned by exactly one coordinator
// goroutine; nothing else mutates it.
type Room struct {
	Code         string
	DeckType     DeckType
	RoundState   RoundState
	Users        []*User // insertion order preserved for display and host succession
	HostVoterKey VoterKey
	Votes        map[VoterKey]Card

	CreatedAt      time.Time
	LastActivityAt time.Time
	EmptySince     time.Time // zero while at least one user is connected
}

func NewRoom(code string, deck DeckType, now time.Time) *Room {
	return &Room{
		Code:           code,
		DeckType:       deck,
		RoundState:     RoundIdle,
		Votes:          make(map[VoterKey]Card),
		CreatedAt:      now,
		LastActivityAt: now,
		// Born empty; the first join clears this, the sweep reclaims
		// rooms nobody ever joined.
		EmptySince: now,
	}
}

func (r *Room) UserByConn(connID string) (*User, bool) {
	if connID == "" {
		return nil, false
	}
	for _, u := range r.Users {
		if u.ConnectionID == connID {
			return u, true
		}
	}
	return nil, false
}

func (r *Room) UserByKey(key VoterKey) (*User, bool) {
	for _, u := range r.Users {
		if u.VoterKey == key {
			return u, true
		}
	}
	return nil, false
}

func (r *Room) Host() (*User, bool) {
	return r.UserByKey(r.HostVoterKey)
}

func (r *Room) ConnectedCount() int {
	n := 0
	for _, u := range r.Users {
		if u.Connected {
			n++
		}
	}
	return n
}

// CanTransition reports whether the round state machine allows the edge.
// Legal edges: idle->voting, voting->revealed, revealed->idle, voting->idle.
func (r *Room) CanTransition(to RoundState) bool {
	switch r.RoundState {
	case RoundIdle:
		return to == RoundVoting
	case RoundVoting:
		return to == RoundRevealed || to == RoundIdle
	case RoundRevealed:
		return to == RoundIdle
	}
	return false
}

// Clone deep-copies the room so a mutation can be validated before it
// replaces the live state.
func (r *Room) Clone() *Room {
	c := *r
	c.Users = make([]*User, len(r.Users))
	for i, u := range r.Users {
		uc := *u
		c.Users[i] = &uc
	}
	c.Votes = make(map[VoterKey]Card, len(r.Votes))
	for k, v := range r.Votes {
		c.Votes[k] = v
	}
	return &c
}

// Validate checks the structural invariants. A coordinator runs this on
// every mutated clone before swapping it in; a failure aborts that one
// operation only.
func (r *Room) Validate() error {
	switch r.RoundState {
	case RoundIdle, RoundVoting, RoundRevealed:
	default:
		return fmt.Errorf("%w: bad round state %q", ErrInvariant, r.RoundState)
	}

	keys := make(map[VoterKey]struct{}, len(r.Users))
	conns := make(map[string]struct{}, len(r.Users))
	for _, u := range r.Users {
		if _, dup := keys[u.VoterKey]; dup {
			return fmt.Errorf("%w: duplicate voter key %s", ErrInvariant, u.VoterKey)
		}
		keys[u.VoterKey] = struct{}{}
		if u.ConnectionID != "" {
			if _, dup := conns[u.ConnectionID]; dup {
				return fmt.Errorf("%w: duplicate connection %s", ErrInvariant, u.ConnectionID)
			}
			conns[u.ConnectionID] = struct{}{}
		}
		if u.Connected && u.ConnectionID == "" {
			return fmt.Errorf("%w: connected user %q without connection", ErrInvariant, u.Name)
		}
	}

	if len(r.Users) > 0 {
		if _, ok := keys[r.HostVoterKey]; !ok {
			return fmt.Errorf("%w: host %s is not a member", ErrInvariant, r.HostVoterKey)
		}
	}

	for k := range r.Votes {
		if _, ok := keys[k]; !ok {
			return fmt.Errorf("%w: vote from non-member %s", ErrInvariant, k)
		}
	}
	return nil
}
