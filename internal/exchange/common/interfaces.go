package common

import (
	"context"

	"tradesim/internal/feed"
)

// StreamFeed is a persistent connection to one venue for one instrument.
// Run blocks until ctx is done, reconnecting as needed; Events delivers frames
// and connection changes in arrival order.
type StreamFeed interface {
	Name() string
	Run(ctx context.Context) error
	Events() <-chan feed.Event
}

// SnapshotRequester asks the venue for a fresh full book. The snapshot itself
// arrives later on the event stream.
type SnapshotRequester interface {
	RequestSnapshot(ctx context.Context) error
}

// Optional capability: feeds whose venue sends a full book in every frame need
// no explicit resync.
type FullBookFeed interface {
	FullBookFrames() bool
}
