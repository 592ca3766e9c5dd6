package domain

import (
	"errors"
	"testing"
	"time"
)

func testUser(t *testing.T, name, conn string) *User {
	t.Helper()
	u, err := NewUser(name, conn, time.Now())
	if err != nil {
		t.Fatalf("NewUser(%q): %v", name, err)
	}
	return u
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RoundState
		want     bool
	}{
		{RoundIdle, RoundVoting, true},
		{RoundIdle, RoundRevealed, false},
		{RoundIdle, RoundIdle, false},
		{RoundVoting, RoundRevealed, true},
		{RoundVoting, RoundIdle, true},
		{RoundVoting, RoundVoting, false},
		{RoundRevealed, RoundIdle, true},
		{RoundRevealed, RoundVoting, false},
		{RoundRevealed, RoundRevealed, false},
	}
	for _, tt := range tests {
		r := NewRoom("ABC123", DeckFibonacci, time.Now())
		r.RoundState = tt.from
		if got := r.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()
	alice := testUser(t, "alice", "conn-a")
	bob := testUser(t, "bob", "conn-b")

	valid := func() *Room {
		r := NewRoom("ABC123", DeckFibonacci, now)
		a, b := *alice, *bob
		r.Users = []*User{&a, &b}
		r.HostVoterKey = a.VoterKey
		r.Votes[a.VoterKey] = "5"
		return r
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid room rejected: %v", err)
	}

	tests := []struct {
		name  string
		wreck func(r *Room)
	}{
		{"host not a member", func(r *Room) { r.HostVoterKey = "nobody" }},
		{"vote from non-member", func(r *Room) { r.Votes["ghost"] = "5" }},
		{"duplicate connection", func(r *Room) { r.Users[1].ConnectionID = "conn-a" }},
		{"duplicate voter key", func(r *Room) { r.Users[1].VoterKey = r.Users[0].VoterKey }},
		{"connected without connection", func(r *Room) { r.Users[0].ConnectionID = "" }},
		{"bad round state", func(r *Room) { r.RoundState = "counting" }},
	}
	for _, tt := range tests {
		r := valid()
		tt.wreck(r)
		err := r.Validate()
		if err == nil {
			t.Errorf("%s: expected invariant violation", tt.name)
			continue
		}
		if !errors.Is(err, ErrInvariant) {
			t.Errorf("%s: error %v does not wrap ErrInvariant", tt.name, err)
		}
	}
}

func TestValidateEmptyRoom(t *testing.T) {
	r := NewRoom("ABC123", DeckTShirt, time.Now())
	if err := r.Validate(); err != nil {
		t.Fatalf("empty room must be valid: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewRoom("ABC123", DeckFibonacci, time.Now())
	u := testUser(t, "alice", "conn-a")
	r.Users = []*User{u}
	r.HostVoterKey = u.VoterKey
	r.Votes[u.VoterKey] = "8"

	c := r.Clone()
	c.Users[0].Name = "mallory"
	c.Votes[u.VoterKey] = "13"
	c.RoundState = RoundVoting

	if r.Users[0].Name != "alice" {
		t.Error("clone shares user structs with the original")
	}
	if r.Votes[u.VoterKey] != "8" {
		t.Error("clone shares the votes map with the original")
	}
	if r.RoundState != RoundIdle {
		t.Error("clone shares scalar state with the original")
	}
}

func TestNewUserValidation(t *testing.T) {
	if _, err := NewUser("", "c", time.Now()); !errors.Is(err, ErrUsernameEmpty) {
		t.Errorf("empty name: got %v, want ErrUsernameEmpty", err)
	}
	long := make([]byte, MaxUsernameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NewUser(string(long), "c", time.Now()); !errors.Is(err, ErrUsernameTooLong) {
		t.Errorf("long name: got %v, want ErrUsernameTooLong", err)
	}
	u, err := NewUser("alice", "conn-a", time.Now())
	if err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	if u.VoterKey == "" || !u.Connected {
		t.Error("new user must be connected with a voter key")
	}
}
