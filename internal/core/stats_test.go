package core

import (
	"testing"
	"time"

	"github.com/sprintdeck/pokerd/internal/domain"
)

func statsRoom(t *testing.T, names ...string) *domain.Room {
	t.Helper()
	r := domain.NewRoom("ABC123", domain.DeckFibonacci, time.Now())
	for i, name := range names {
		u, err := domain.NewUser(name, "conn-"+name, time.Now())
		if err != nil {
			t.Fatalf("NewUser(%q): %v", name, err)
		}
		r.Users = append(r.Users, u)
		if i == 0 {
			r.HostVoterKey = u.VoterKey
		}
	}
	return r
}

func vote(r *domain.Room, name string, card domain.Card) {
	for _, u := range r.Users {
		if u.Name == name {
			r.Votes[u.VoterKey] = card
			return
		}
	}
}

func TestComputeStatsAverageExcludesNonNumeric(t *testing.T) {
	r := statsRoom(t, "A", "B", "C")
	r.RoundState = domain.RoundVoting
	vote(r, "A", "1")
	vote(r, "B", "3")
	vote(r, "C", "?")

	s := ComputeStats(r)
	if s.TotalUsers != 3 {
		t.Errorf("TotalUsers = %d, want 3", s.TotalUsers)
	}
	if s.VotedUsers != 3 {
		t.Errorf("VotedUsers = %d, want 3", s.VotedUsers)
	}
	if s.Average == nil || *s.Average != 2 {
		t.Errorf("Average = %v, want 2", s.Average)
	}
}

func TestComputeStatsNoNumericVotes(t *testing.T) {
	r := statsRoom(t, "A", "B")
	r.RoundState = domain.RoundVoting
	vote(r, "A", "?")

	s := ComputeStats(r)
	if s.Average != nil {
		t.Errorf("Average = %v, want nil with zero numeric votes", *s.Average)
	}
	if s.VotedUsers != 1 {
		t.Errorf("VotedUsers = %d, want 1", s.VotedUsers)
	}
}

func TestComputeStatsVotesHiddenUntilRevealed(t *testing.T) {
	r := statsRoom(t, "A")
	r.RoundState = domain.RoundVoting
	vote(r, "A", "5")

	if s := ComputeStats(r); s.Votes != nil {
		t.Errorf("Votes = %v, want nil while voting", s.Votes)
	}

	r.RoundState = domain.RoundRevealed
	s := ComputeStats(r)
	if s.Votes == nil {
		t.Fatal("Votes must be populated once revealed")
	}
	if got := s.Votes["A"]; got != "5" {
		t.Errorf("Votes[A] = %q, want %q", got, "5")
	}
}

func TestComputeStatsDisconnectedUsers(t *testing.T) {
	r := statsRoom(t, "A", "B")
	r.RoundState = domain.RoundVoting
	vote(r, "A", "5")
	vote(r, "B", "13")

	// B drops but stays retained: out of both counters, vote still in
	// the average.
	r.Users[1].Connected = false
	r.Users[1].ConnectionID = ""

	s := ComputeStats(r)
	if s.TotalUsers != 1 {
		t.Errorf("TotalUsers = %d, want 1", s.TotalUsers)
	}
	if s.VotedUsers != 1 {
		t.Errorf("VotedUsers = %d, want 1", s.VotedUsers)
	}
	if s.Average == nil || *s.Average != 9 {
		t.Errorf("Average = %v, want 9", s.Average)
	}
}
