// Package app wires rooms together: the registry that owns coordinators
// and the session directory that maps connections and resumable
// identities back to them.
package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/domain"
)

// Binding ties a live connection to the room and voter it belongs to.
type Binding struct {
	RoomCode string
	VoterKey domain.VoterKey
	Name     string
}

type retainedIdentity struct {
	voterKey  domain.VoterKey
	expiresAt time.Time
	revoked   bool
}

// SessionDirectory is the only structure touched by more than one room's
// control flow. Its operations are O(1) under a single mutex and never
// call into a coordinator while holding it.
type SessionDirectory struct {
	mu    sync.Mutex
	clock clockwork.Clock
	grace time.Duration

	byConn map[string]Binding
	// (room code, display name) -> identity retained across a
	// disconnect for the grace period, so a rejoin by the same name
	// resumes the same voter key.
	retained map[string]retainedIdentity
}

func NewSessionDirectory(clock clockwork.Clock, grace time.Duration) *SessionDirectory {
	return &SessionDirectory{
		clock:    clock,
		grace:    grace,
		byConn:   make(map[string]Binding),
		retained: make(map[string]retainedIdentity),
	}
}

func identityKey(roomCode, name string) string {
	return roomCode + "\x00" + name
}

func (d *SessionDirectory) Bind(connID, roomCode, name string, key domain.VoterKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byConn[connID] = Binding{RoomCode: roomCode, VoterKey: key, Name: name}
	// A live member consumes any identity retained under its name.
	delete(d.retained, identityKey(roomCode, name))
	log.Debug().Str("module", "app.sessions").Str("conn", connID).Str("room", roomCode).Msg("bound connection")
}

func (d *SessionDirectory) Lookup(connID string) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.byConn[connID]
	return b, ok
}

func (d *SessionDirectory) Unbind(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byConn, connID)
}

// Retain holds a disconnected member's identity for rejoin-by-name. The
// entry self-expires on the same grace period the coordinator uses for
// the structural removal.
func (d *SessionDirectory) Retain(roomCode, name string, key domain.VoterKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retained[identityKey(roomCode, name)] = retainedIdentity{
		voterKey:  key,
		expiresAt: d.clock.Now().Add(d.grace),
	}
}

// ResolveRejoin returns the retained voter key for (room, name) if one
// exists and has not expired. revoked reports a kicked identity, which
// must be refused rather than resumed or readmitted.
func (d *SessionDirectory) ResolveRejoin(roomCode, name string) (key domain.VoterKey, ok bool, revoked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ik := identityKey(roomCode, name)
	r, exists := d.retained[ik]
	if !exists {
		return "", false, false
	}
	if d.clock.Now().After(r.expiresAt) {
		delete(d.retained, ik)
		return "", false, false
	}
	if r.revoked {
		return "", false, true
	}
	return r.voterKey, true, false
}

// Revoke bans the (room, name) identity for the grace period. Used on
// kick: the removed user keeps the name out of the resumption map and
// cannot slip back in under it.
func (d *SessionDirectory) Revoke(roomCode, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retained[identityKey(roomCode, name)] = retainedIdentity{
		expiresAt: d.clock.Now().Add(d.grace),
		revoked:   true,
	}
}

// ClearRetained drops a retained identity immediately (explicit leave or
// grace expiry already finalized by the coordinator).
func (d *SessionDirectory) ClearRetained(roomCode, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.retained, identityKey(roomCode, name))
}

// HasRetained reports whether any unexpired identity is still held for
// the room. The sweep refuses to reclaim a room that could still be
// rejoined.
func (d *SessionDirectory) HasRetained(roomCode string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	prefix := roomCode + "\x00"
	for ik, r := range d.retained {
		if len(ik) >= len(prefix) && ik[:len(prefix)] == prefix {
			if now.After(r.expiresAt) {
				delete(d.retained, ik)
				continue
			}
			return true
		}
	}
	return false
}

// ConnsInRoom lists the connections currently joined to the room, for
// broadcast fan-out.
func (d *SessionDirectory) ConnsInRoom(roomCode string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.byConn))
	for connID, b := range d.byConn {
		if b.RoomCode == roomCode {
			out = append(out, connID)
		}
	}
	return out
}
