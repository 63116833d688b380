package errors

import "errors"

var (
	ErrNotFound = errors.New("therapist not found")
)
