package domain

import "errors"

var (
	// ErrOutOfOrder marks an update whose sequence/timestamp precedes the
	// stored book. The update is discarded and the book left untouched.
	ErrOutOfOrder = errors.New("update out of order")
	// ErrCrossedBook marks a merge that left best bid >= best ask. The merged
	// state is retained; the caller should log and continue.
	ErrCrossedBook = errors.New("crossed book")

	ErrNotFound     = errors.New("not found")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
