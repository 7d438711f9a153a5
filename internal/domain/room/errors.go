package room

import "errors"

// Errors surfaced by the registry and the engine. Callers test them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrDuplicateRoomCode = errors.New("room code already in use")
	ErrNotAMember        = errors.New("participant is not a member of the room")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)
