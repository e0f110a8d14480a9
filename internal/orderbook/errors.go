package orderbook

import "errors"

var (
	// ErrOutOfSequence means the update does not follow the last applied one.
	// The caller resynchronizes by applying a fresh snapshot.
	ErrOutOfSequence = errors.New("orderbook: update out of sequence")
	// ErrMalformedUpdate means the update is structurally invalid; it was dropped.
	ErrMalformedUpdate = errors.New("orderbook: malformed update")
)
