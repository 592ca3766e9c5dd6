package core

import "errors"

// Operation failures returned to the calling connection. None of them
// affect the room or other members.
var (
	ErrNotFound     = errors.New("room not found")
	ErrInvalidState = errors.New("operation not allowed in current round state")
	ErrInvalidCard  = errors.New("vote is not in the active deck")
	ErrForbidden    = errors.New("operation requires host")
	ErrRoomClosed   = errors.New("room closed")
)

// ReasonCode maps an operation failure to the stable code carried in the
// acknowledgement frame. The UI maps codes to presentation.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidCard):
		return "invalid_card"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	}
	return "internal"
}
