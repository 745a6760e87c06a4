package domain

import "errors"

var (
	// ErrUnauthorized is returned when an operation is attempted without a caller identity.
	ErrUnauthorized = errors.New("caller not authenticated")
	// ErrRoomNotFound is returned when a room ID does not resolve to a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed the room's capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrQuestionNotFound indicates a requested sequence position is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrVariantNotFound indicates a submitted variant ID is invalid.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrUserNotFound indicates the user record is absent from the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCapacity rejects rooms that could never finish a round.
	ErrInvalidCapacity = errors.New("room capacity must be at least 2")
)
