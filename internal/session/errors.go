package session

import "errors"

// Failure reasons surfaced to clients as the payload of an "error" event.
// The string values are the wire contract, keep them stable.
var (
	ErrInvalidInputType = errors.New("invalid_input_type")
	ErrAlreadyHost      = errors.New("already_host")
	ErrAlreadyInRoom    = errors.New("already_in_room")
	ErrRoomNotFound     = errors.New("room_not_found")
	ErrWrongPassword    = errors.New("wrong_password")
	ErrNotHost          = errors.New("not_host")
	ErrUserNotFound     = errors.New("user_not_found")
)
