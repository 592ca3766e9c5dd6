package core

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/domain"
)

// Coordinator is the single-writer actor owning one room. Every mutating
// operation runs to completion on the actor goroutine before the next
// starts, which makes the room invariants atomic without locks inside
// the state itself. Cross-room parallelism is unbounded; a coordinator
// never waits on another room.
type Coordinator struct {
	code  string
	clock clockwork.Clock
	grace time.Duration
	sink  EventSink

	ops  chan func()
	done chan struct{}

	// Everything below is touched only on the actor goroutine.
	room    *domain.Room
	stopped bool
	timers  map[domain.VoterKey]clockwork.Timer
	gens    map[domain.VoterKey]int
}

func NewCoordinator(room *domain.Room, clock clockwork.Clock, grace time.Duration, sink EventSink) *Coordinator {
	c := &Coordinator{
		code:   room.Code,
		clock:  clock,
		grace:  grace,
		sink:   sink,
		ops:    make(chan func(), 16),
		done:   make(chan struct{}),
		room:   room,
		timers: make(map[domain.VoterKey]clockwork.Timer),
		gens:   make(map[domain.VoterKey]int),
	}
	go c.run()
	return c
}

// Code is safe to call from any goroutine: the room code never changes,
// so it lives outside the actor-private state.
func (c *Coordinator) Code() string { return c.code }

func (c *Coordinator) run() {
	for fn := range c.ops {
		fn()
		if c.stopped {
			c.drainOps()
			return
		}
	}
}

// drainOps completes operations that were queued before the close op so
// their callers are released; the bodies see stopped and do nothing.
func (c *Coordinator) drainOps() {
	for {
		select {
		case fn := <-c.ops:
			fn()
		default:
			return
		}
	}
}

// exec runs fn on the actor goroutine and waits for it. Returns
// ErrRoomClosed when the room was destroyed before or while the
// operation was queued.
func (c *Coordinator) exec(fn func()) error {
	select {
	case <-c.done:
		return ErrRoomClosed
	default:
	}
	ran := make(chan struct{})
	wrapped := func() {
		defer close(ran)
		fn()
	}
	select {
	case c.ops <- wrapped:
	case <-c.done:
		return ErrRoomClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
		}
		return ErrRoomClosed
	}
}

// submit is the fire-and-forget variant used by timer callbacks.
func (c *Coordinator) submit(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

// mutate applies fn to a clone, validates the invariants and swaps the
// clone in. A violated invariant aborts this one operation and leaves
// the live state untouched.
func (c *Coordinator) mutate(fn func(r *domain.Room) error) error {
	next := c.room.Clone()
	if err := fn(next); err != nil {
		return err
	}
	now := c.clock.Now()
	next.LastActivityAt = now
	if next.ConnectedCount() == 0 {
		if next.EmptySince.IsZero() {
			next.EmptySince = now
		}
	} else {
		next.EmptySince = time.Time{}
	}
	if err := next.Validate(); err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.room.Code).Msg("mutation rolled back")
		return err
	}
	c.room = next
	return nil
}

// JoinResult is the full acknowledgement for a successful join.
type JoinResult struct {
	Room           RoomView
	User           UserView
	VoterKey       domain.VoterKey
	Stats          Stats
	UserVote       domain.Card
	HasVote        bool
	IsReconnection bool
}

// Join admits a connection. A non-empty prior key (resolved by the
// session directory from room code + display name) reattaches the
// disconnected member it names, preserving host status and any vote
// already cast.
func (c *Coordinator) Join(connID, name string, prior domain.VoterKey) (JoinResult, []Event, error) {
	var (
		res    JoinResult
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		if u, ok := c.room.UserByConn(connID); ok {
			// Duplicate join on a live connection resyncs instead of
			// duplicating the member.
			res = c.joinResult(u, false)
			return
		}

		reconnection := false
		var key domain.VoterKey
		if prior != "" {
			if u, ok := c.room.UserByKey(prior); ok && !u.Connected {
				reconnection = true
				key = u.VoterKey
			}
		}

		if reconnection {
			opErr = c.mutate(func(r *domain.Room) error {
				u, _ := r.UserByKey(key)
				u.ConnectionID = connID
				u.Connected = true
				u.Name = name
				return nil
			})
		} else {
			u, err := domain.NewUser(name, connID, c.clock.Now())
			if err != nil {
				opErr = err
				return
			}
			key = u.VoterKey
			opErr = c.mutate(func(r *domain.Room) error {
				r.Users = append(r.Users, u)
				if len(r.Users) == 1 {
					r.HostVoterKey = u.VoterKey
				}
				return nil
			})
		}
		if opErr != nil {
			return
		}

		if t, ok := c.timers[key]; ok {
			t.Stop()
			delete(c.timers, key)
		}

		u, _ := c.room.UserByKey(key)
		res = c.joinResult(u, reconnection)
		events = []Event{{
			Type:    EventUserJoined,
			Exclude: connID,
			Payload: UserJoinedPayload{User: viewOf(u, c.room.HostVoterKey), IsReconnection: reconnection},
		}}
	})
	if err != nil {
		return JoinResult{}, nil, err
	}
	return res, events, opErr
}

func (c *Coordinator) joinResult(u *domain.User, reconnection bool) JoinResult {
	vote, hasVote := c.room.Votes[u.VoterKey]
	return JoinResult{
		Room:           Snapshot(c.room),
		User:           viewOf(u, c.room.HostVoterKey),
		VoterKey:       u.VoterKey,
		Stats:          ComputeStats(c.room),
		UserVote:       vote,
		HasVote:        hasVote,
		IsReconnection: reconnection,
	}
}

// LeaveResult tells the gateway which identity left so it can drop the
// directory bindings.
type LeaveResult struct {
	UserName string
	VoterKey domain.VoterKey
}

// Leave removes the member behind connID immediately (explicit
// leave-room; disconnects go through Disconnect and the grace period).
func (c *Coordinator) Leave(connID string) (LeaveResult, []Event, error) {
	var (
		res    LeaveResult
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		u, ok := c.room.UserByConn(connID)
		if !ok {
			opErr = ErrNotFound
			return
		}
		res = LeaveResult{UserName: u.Name, VoterKey: u.VoterKey}
		events, opErr = c.removeMember(u.VoterKey)
	})
	if err != nil {
		return LeaveResult{}, nil, err
	}
	return res, events, opErr
}

// removeMember drops the member, promotes a replacement host when the
// departing member held it, and builds the user-left broadcast. Runs on
// the actor goroutine only.
func (c *Coordinator) removeMember(key domain.VoterKey) ([]Event, error) {
	u, ok := c.room.UserByKey(key)
	if !ok {
		return nil, ErrNotFound
	}
	name := u.Name
	wasHost := c.room.HostVoterKey == key

	newHost := ""
	err := c.mutate(func(r *domain.Room) error {
		users := r.Users[:0]
		for _, m := range r.Users {
			if m.VoterKey != key {
				users = append(users, m)
			}
		}
		r.Users = users
		delete(r.Votes, key)
		if wasHost && len(r.Users) > 0 {
			// Longest-tenured member, first by insertion order.
			r.HostVoterKey = r.Users[0].VoterKey
			newHost = r.Users[0].Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
	delete(c.gens, key)

	return []Event{{
		Type:    EventUserLeft,
		Payload: UserLeftPayload{UserName: name, NewHost: newHost, Stats: ComputeStats(c.room)},
	}}, nil
}

// DisconnectResult carries the identity the directory should retain for
// rejoin-by-name during the grace period.
type DisconnectResult struct {
	UserName string
	VoterKey domain.VoterKey
}

// Disconnect marks the member disconnected, holds its slot and vote open
// for the grace period, and schedules the structural removal. A rejoin
// within the window cancels it.
func (c *Coordinator) Disconnect(connID string) (DisconnectResult, []Event, error) {
	var (
		res    DisconnectResult
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		u, ok := c.room.UserByConn(connID)
		if !ok {
			opErr = ErrNotFound
			return
		}
		key := u.VoterKey
		res = DisconnectResult{UserName: u.Name, VoterKey: key}

		opErr = c.mutate(func(r *domain.Room) error {
			m, _ := r.UserByKey(key)
			m.ConnectionID = ""
			m.Connected = false
			return nil
		})
		if opErr != nil {
			return
		}

		c.gens[key]++
		gen := c.gens[key]
		if t, ok := c.timers[key]; ok {
			t.Stop()
		}
		c.timers[key] = c.clock.AfterFunc(c.grace, func() {
			c.submit(func() { c.expire(key, gen) })
		})

		events = []Event{{
			Type:    EventRoomUpdated,
			Payload: RoomUpdatedPayload{RoomView: Snapshot(c.room), Stats: ComputeStats(c.room)},
		}}
	})
	if err != nil {
		return DisconnectResult{}, nil, err
	}
	return res, events, opErr
}

// expire finalizes a disconnect whose grace period elapsed without a
// rejoin. Runs on the actor goroutine; broadcasts go through the sink
// because no caller is waiting.
func (c *Coordinator) expire(key domain.VoterKey, gen int) {
	if c.stopped {
		return
	}
	u, ok := c.room.UserByKey(key)
	if !ok || u.Connected || c.gens[key] != gen {
		return
	}
	events, err := c.removeMember(key)
	if err != nil {
		log.Error().Err(err).Str("module", "core.coordinator").Str("room", c.room.Code).Msg("grace expiry failed")
		return
	}
	log.Info().Str("module", "core.coordinator").Str("room", c.room.Code).Str("user", u.Name).Msg("grace period expired")
	if c.sink != nil {
		c.sink.Publish(c.room.Code, events)
	}
}

// CastVote records or overwrites the caller's vote. Legal only while the
// round is voting and the card belongs to the room's deck.
func (c *Coordinator) CastVote(connID string, card domain.Card) (Stats, []Event, error) {
	var (
		stats  Stats
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		u, ok := c.room.UserByConn(connID)
		if !ok {
			opErr = ErrNotFound
			return
		}
		if c.room.RoundState != domain.RoundVoting {
			opErr = ErrInvalidState
			return
		}
		if !c.room.DeckType.Contains(card) {
			opErr = ErrInvalidCard
			return
		}
		key := u.VoterKey
		opErr = c.mutate(func(r *domain.Room) error {
			r.Votes[key] = card
			return nil
		})
		if opErr != nil {
			return
		}
		stats = ComputeStats(c.room)
		events = []Event{{
			Type:    EventVoteCast,
			Payload: VoteCastPayload{UserName: u.Name, Vote: card, Stats: stats},
		}}
	})
	if err != nil {
		return Stats{}, nil, err
	}
	return stats, events, opErr
}

// transition is the shared host-only round-state edge.
func (c *Coordinator) transition(connID string, to domain.RoundState, clearVotes bool) error {
	host, ok := c.room.Host()
	if !ok || host.ConnectionID != connID {
		return ErrForbidden
	}
	if !c.room.CanTransition(to) {
		return ErrInvalidState
	}
	return c.mutate(func(r *domain.Room) error {
		r.RoundState = to
		if clearVotes {
			r.Votes = make(map[domain.VoterKey]domain.Card)
		}
		return nil
	})
}

// StartVoting opens a round: idle -> voting, votes cleared.
func (c *Coordinator) StartVoting(connID string) (Stats, []Event, error) {
	var (
		stats  Stats
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		if opErr = c.transition(connID, domain.RoundVoting, true); opErr != nil {
			return
		}
		stats = ComputeStats(c.room)
		events = []Event{{
			Type:    EventVotingStarted,
			Payload: VotingStartedPayload{RoundState: c.room.RoundState},
		}}
	})
	if err != nil {
		return Stats{}, nil, err
	}
	return stats, events, opErr
}

// RevealVotes exposes the collected votes: voting -> revealed. The votes
// themselves are untouched, so revealing is idempotent on their content.
func (c *Coordinator) RevealVotes(connID string) ([]Event, error) {
	var (
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		if c.room.RoundState == domain.RoundRevealed {
			// Repeat reveal re-exposes the same votes mapping.
			host, ok := c.room.Host()
			if !ok || host.ConnectionID != connID {
				opErr = ErrForbidden
				return
			}
		} else if opErr = c.transition(connID, domain.RoundRevealed, false); opErr != nil {
			return
		}
		stats := ComputeStats(c.room)
		events = []Event{{
			Type:    EventVotesRevealed,
			Payload: VotesRevealedPayload{RoundState: c.room.RoundState, Stats: stats, Votes: stats.Votes},
		}}
	})
	if err != nil {
		return nil, err
	}
	return events, opErr
}

// ResetRound returns to idle from either voting or revealed, clearing
// votes. Reset-then-start is two ordered operations, so both broadcasts
// are observable.
func (c *Coordinator) ResetRound(connID string) ([]Event, error) {
	var (
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		if opErr = c.transition(connID, domain.RoundIdle, true); opErr != nil {
			return
		}
		events = []Event{{
			Type:    EventRoundReset,
			Payload: RoundResetPayload{RoundState: c.room.RoundState},
		}}
	})
	if err != nil {
		return nil, err
	}
	return events, opErr
}

// MakeHost transfers the host role to another current member.
func (c *Coordinator) MakeHost(connID, targetConnID string) ([]Event, error) {
	var (
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		host, ok := c.room.Host()
		if !ok || host.ConnectionID != connID {
			opErr = ErrForbidden
			return
		}
		target, ok := c.room.UserByConn(targetConnID)
		if !ok {
			opErr = ErrForbidden
			return
		}
		key := target.VoterKey
		opErr = c.mutate(func(r *domain.Room) error {
			r.HostVoterKey = key
			return nil
		})
		if opErr != nil {
			return
		}
		events = []Event{{
			Type: EventRoomUpdated,
			Payload: RoomUpdatedPayload{
				RoomView:    Snapshot(c.room),
				NewHostName: target.Name,
				Stats:       ComputeStats(c.room),
			},
		}}
	})
	if err != nil {
		return nil, err
	}
	return events, opErr
}

// KickResult identifies the removed connection so the gateway can notify
// it and revoke its retained identity.
type KickResult struct {
	ConnID   string
	UserName string
	VoterKey domain.VoterKey
}

// RemoveUser kicks a member. The target gets a terminal "removed" event
// and its retained identity must not be honored for a rejoin.
func (c *Coordinator) RemoveUser(connID, targetConnID string) (KickResult, []Event, error) {
	var (
		res    KickResult
		events []Event
		opErr  error
	)
	err := c.exec(func() {
		if c.stopped {
			opErr = ErrRoomClosed
			return
		}
		host, ok := c.room.Host()
		if !ok || host.ConnectionID != connID {
			opErr = ErrForbidden
			return
		}
		target, ok := c.room.UserByConn(targetConnID)
		if !ok {
			opErr = ErrForbidden
			return
		}
		res = KickResult{ConnID: target.ConnectionID, UserName: target.Name, VoterKey: target.VoterKey}
		events, opErr = c.removeMember(target.VoterKey)
		if opErr != nil {
			return
		}
		events = append(events, Event{Type: EventRemoved, To: res.ConnID})
	})
	if err != nil {
		return KickResult{}, nil, err
	}
	return res, events, opErr
}

// Snapshot returns the current wire-visible state, for the room probe.
func (c *Coordinator) Snapshot() (RoomView, error) {
	var view RoomView
	err := c.exec(func() {
		if !c.stopped {
			view = Snapshot(c.room)
		}
	})
	return view, err
}

// Expirable reports whether the sweep may reclaim this room: nobody
// connected for at least the grace period.
func (c *Coordinator) Expirable() bool {
	expirable := false
	err := c.exec(func() {
		if c.stopped {
			return
		}
		r := c.room
		expirable = r.ConnectedCount() == 0 &&
			!r.EmptySince.IsZero() &&
			c.clock.Now().Sub(r.EmptySince) >= c.grace
	})
	return err == nil && expirable
}

// Close destroys the room. Serialized through the actor like every other
// operation, so it never races an operation in flight; queued callers
// are released with ErrRoomClosed.
func (c *Coordinator) Close() {
	_ = c.exec(func() {
		if c.stopped {
			return
		}
		c.stopped = true
		for _, t := range c.timers {
			t.Stop()
		}
		close(c.done)
		log.Info().Str("module", "core.coordinator").Str("room", c.room.Code).Msg("room closed")
	})
}
