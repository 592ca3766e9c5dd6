// Package domain contains room and user entities plus their invariants.
// No transport or scheduling logic lives here.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// VoterKey is the stable identity a user's vote is indexed by. It
// survives reconnects; the connection ID does not.
type VoterKey string

type User struct {
	VoterKey     VoterKey
	ConnectionID string // empty while disconnected-but-retained
	Name         string
	Connected    bool
	JoinedAt     time.Time
}

func NewUser(name string, connID string, now time.Time) (*User, error) {
	if len(name) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{
		VoterKey:     VoterKey(uuid.NewString()),
		ConnectionID: connID,
		Name:         name,
		Connected:    true,
		JoinedAt:     now,
	}, nil
}
