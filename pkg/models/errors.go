package models

import "errors"

// Store and persistence error taxonomy. Operations referencing missing
// entities fail loudly with ErrNotFound instead of silently no-opping.
var (
	// ErrNotFound indicates an operation referenced a thread or message ID
	// absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation that would violate a store
	// invariant, such as deleting the main thread or adding a thread to its
	// own context.
	ErrInvalidState = errors.New("invalid state")
	// ErrSerialization indicates a malformed import payload.
	ErrSerialization = errors.New("malformed snapshot")
)
