package store

import "errors"

var (
	// ErrNotFound signals an absent account or transfer id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState signals a client operation on a transfer that already
	// left PENDING; status transitions belong to the engine alone.
	ErrInvalidState = errors.New("transfer is not pending")
)
