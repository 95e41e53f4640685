package domain

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParameter wraps every validation failure of caller input.
	ErrInvalidParameter = errors.New("invalid parameter")
)
