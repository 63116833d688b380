package errors

import "errors"

var (
	ErrAlreadyBooked = errors.New("slot already booked")
	ErrNotFound      = errors.New("booking not found")
)
