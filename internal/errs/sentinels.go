// Package errs contains sentinel errors shared by the storage and HTTP layers.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID indicates an id that is not a valid object id.
	ErrInvalidID = errors.New("invalid id")

	// ErrAlreadyExists indicates a unique constraint violation (e.g. plate or username taken).
	ErrAlreadyExists = errors.New("already exists")
)
