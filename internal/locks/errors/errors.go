package errors

import "errors"

var (
	// ErrContended means another user holds a non-expired lock on the slot.
	ErrContended = errors.New("slot lock is held by another user")

	ErrInvalidKey = errors.New("therapist id and slot datetime are required")
)
