package core

import "github.com/sprintdeck/pokerd/internal/domain"

// Stats is the aggregate view broadcast with most room events.
type Stats struct {
	TotalUsers int      `json:"totalUsers"`
	VotedUsers int      `json:"votedUsers"`
	Average    *float64 `json:"average"`
	// Votes is keyed by display name for presentation and is only
	// populated once the round is revealed; nil keeps in-progress
	// votes secret.
	Votes map[string]domain.Card `json:"votes"`
}

// ComputeStats is a pure function of the room at the instant of call.
// Disconnected-but-retained users are excluded from both counters, but
// their stale votes still feed the average and the revealed map so the
// display stays continuous through a reconnect.
func ComputeStats(r *domain.Room) Stats {
	s := Stats{}
	for _, u := range r.Users {
		if !u.Connected {
			continue
		}
		s.TotalUsers++
		if _, ok := r.Votes[u.VoterKey]; ok {
			s.VotedUsers++
		}
	}

	var sum float64
	var numeric int
	for _, card := range r.Votes {
		if v, ok := card.Numeric(); ok {
			sum += v
			numeric++
		}
	}
	if numeric > 0 {
		avg := sum / float64(numeric)
		s.Average = &avg
	}

	if r.RoundState == domain.RoundRevealed {
		s.Votes = make(map[string]domain.Card, len(r.Votes))
		for key, card := range r.Votes {
			if u, ok := r.UserByKey(key); ok {
				s.Votes[u.Name] = card
			}
		}
	}
	return s
}
