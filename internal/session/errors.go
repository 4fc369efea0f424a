package session

import "errors"

var (
	// ErrNotFound indicates the session does not exist or was evicted.
	ErrNotFound = errors.New("session not found")

	// ErrStoreFull indicates the capacity ceiling is reached and every
	// resident session has a turn in flight, so none can be evicted.
	ErrStoreFull = errors.New("session store full")
)
