package repository

import "errors"

var (
	// ErrDuplicate reports that a unique key already holds a row.
	ErrDuplicate = errors.New("duplicate row")
	// ErrStaleState reports that a conditional update found the row in another state.
	ErrStaleState = errors.New("row is no longer in the expected state")
	// ErrCapacityReached reports that an event has no seats left.
	ErrCapacityReached = errors.New("capacity reached")
)
