package app

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sprintdeck/pokerd/internal/domain"
)

const testGrace = 30 * time.Second

func newTestDirectory() (*SessionDirectory, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewSessionDirectory(clock, testGrace), clock
}

func TestBindLookupUnbind(t *testing.T) {
	dir, _ := newTestDirectory()

	dir.Bind("conn-1", "ABC123", "alice", "key-1")
	b, ok := dir.Lookup("conn-1")
	if !ok {
		t.Fatal("Lookup after Bind failed")
	}
	if b.RoomCode != "ABC123" || b.VoterKey != "key-1" || b.Name != "alice" {
		t.Errorf("binding = %+v", b)
	}

	dir.Unbind("conn-1")
	if _, ok := dir.Lookup("conn-1"); ok {
		t.Error("Lookup after Unbind succeeded")
	}
}

func TestResolveRejoinWithinGrace(t *testing.T) {
	dir, clock := newTestDirectory()

	dir.Retain("ABC123", "alice", "key-1")
	clock.Advance(testGrace / 2)

	key, ok, revoked := dir.ResolveRejoin("ABC123", "alice")
	if !ok || revoked {
		t.Fatalf("ResolveRejoin = (%v, %v, %v), want retained identity", key, ok, revoked)
	}
	if key != domain.VoterKey("key-1") {
		t.Errorf("key = %s, want key-1", key)
	}

	// Wrong room or wrong name resolves nothing.
	if _, ok, _ := dir.ResolveRejoin("XYZ789", "alice"); ok {
		t.Error("identity leaked across rooms")
	}
	if _, ok, _ := dir.ResolveRejoin("ABC123", "bob"); ok {
		t.Error("identity resolved for the wrong name")
	}
}

func TestResolveRejoinAfterExpiry(t *testing.T) {
	dir, clock := newTestDirectory()

	dir.Retain("ABC123", "alice", "key-1")
	clock.Advance(testGrace + time.Second)

	if _, ok, _ := dir.ResolveRejoin("ABC123", "alice"); ok {
		t.Error("expired identity must not resolve")
	}
	if dir.HasRetained("ABC123") {
		t.Error("HasRetained must prune expired identities")
	}
}

func TestRevokedIdentityIsRefused(t *testing.T) {
	dir, clock := newTestDirectory()

	dir.Retain("ABC123", "alice", "key-1")
	dir.Revoke("ABC123", "alice")

	_, ok, revoked := dir.ResolveRejoin("ABC123", "alice")
	if ok || !revoked {
		t.Errorf("ResolveRejoin on revoked = (ok=%v, revoked=%v), want refusal", ok, revoked)
	}

	// The ban lapses with the grace period.
	clock.Advance(testGrace + time.Second)
	if _, ok, revoked := dir.ResolveRejoin("ABC123", "alice"); ok || revoked {
		t.Error("lapsed ban must resolve to a fresh join")
	}
}

func TestBindConsumesRetainedIdentity(t *testing.T) {
	dir, _ := newTestDirectory()

	dir.Retain("ABC123", "alice", "key-1")
	dir.Bind("conn-2", "ABC123", "alice", "key-1")

	if dir.HasRetained("ABC123") {
		t.Error("rejoin must consume the retained identity")
	}
}

func TestConnsInRoom(t *testing.T) {
	dir, _ := newTestDirectory()

	dir.Bind("conn-1", "ABC123", "alice", "key-1")
	dir.Bind("conn-2", "ABC123", "bob", "key-2")
	dir.Bind("conn-3", "XYZ789", "carol", "key-3")

	conns := dir.ConnsInRoom("ABC123")
	if len(conns) != 2 {
		t.Fatalf("ConnsInRoom = %v, want 2 entries", conns)
	}
	seen := map[string]bool{}
	for _, id := range conns {
		seen[id] = true
	}
	if !seen["conn-1"] || !seen["conn-2"] || seen["conn-3"] {
		t.Errorf("ConnsInRoom = %v", conns)
	}
}
