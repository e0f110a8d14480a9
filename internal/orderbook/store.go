package orderbook

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// book is one published version of the ladders. It is immutable after Store
// publishes it.
type book struct {
	seq     uint64
	ts      time.Time
	applied time.Time
	bids    []Level
	asks    []Level
	// synced is false until a snapshot lands and again after a sequence gap.
	synced bool
}

// Store is the authoritative L2 book for one instrument.
//
// One writer calls Apply in feed order. Every Apply builds a new book from the
// current one (copy-on-write per touched side) and swaps it in with a single
// atomic store, so readers load a pointer and never take a lock or observe a
// partially applied update.
type Store struct {
	cur atomic.Pointer[book]
	wmu sync.Mutex // serializes writers only
	now func() time.Time
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	s.cur.Store(&book{})
	return s
}

// Apply applies u atomically. A snapshot replaces both sides and resets the
// sequence chain. A delta must follow the last applied sequence; otherwise
// ErrOutOfSequence is returned, the visible book is left as is and every later
// delta is refused until the next snapshot.
func (s *Store) Apply(u Update) error {
	if err := u.validate(); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	cur := s.cur.Load()
	now := s.now()
	next := &book{seq: u.Seq, ts: u.Timestamp, applied: now, synced: true}
	if next.ts.IsZero() {
		next.ts = now
	}

	switch u.Kind {
	case KindSnapshot:
		next.bids = buildLadder(Bid, u.Bids)
		next.asks = buildLadder(Ask, u.Asks)
	case KindDelta:
		if !cur.synced {
			return fmt.Errorf("%w: awaiting snapshot, got seq %d", ErrOutOfSequence, u.Seq)
		}
		if !u.follows(cur.seq) {
			desynced := *cur
			desynced.synced = false
			s.cur.Store(&desynced)
			if u.HasPrev {
				return fmt.Errorf("%w: last %d, got seq %d with prev %d", ErrOutOfSequence, cur.seq, u.Seq, u.PrevSeq)
			}
			return fmt.Errorf("%w: last %d, got seq %d", ErrOutOfSequence, cur.seq, u.Seq)
		}
		next.bids = applyChanges(Bid, cur.bids, u.Changes)
		next.asks = applyChanges(Ask, cur.asks, u.Changes)
	}

	s.cur.Store(next)
	return nil
}

// Snapshot copies the top depth levels of each side from one published
// version; depth <= 0 copies the full ladders.
func (s *Store) Snapshot(depth int) Snapshot {
	b := s.cur.Load()
	return Snapshot{
		Seq:       b.seq,
		Timestamp: b.ts,
		Bids:      top(b.bids, depth),
		Asks:      top(b.asks, depth),
	}
}

func (s *Store) BestBid() (Level, bool) { return first(s.cur.Load().bids) }
func (s *Store) BestAsk() (Level, bool) { return first(s.cur.Load().asks) }

// Seq is the last applied sequence number.
func (s *Store) Seq() uint64 { return s.cur.Load().seq }

// Synced reports whether deltas are currently accepted.
func (s *Store) Synced() bool { return s.cur.Load().synced }

// Len returns the number of levels resting on side.
func (s *Store) Len(side Side) int {
	b := s.cur.Load()
	if side == Bid {
		return len(b.bids)
	}
	return len(b.asks)
}

// Age is the time since the last successful Apply. It is zero before the first one.
func (s *Store) Age(now time.Time) time.Duration {
	b := s.cur.Load()
	if b.applied.IsZero() {
		return 0
	}
	return now.Sub(b.applied)
}

// IsStale reports whether nothing has been applied within maxAge. A store that
// never received an update is stale.
func (s *Store) IsStale(now time.Time, maxAge time.Duration) bool {
	b := s.cur.Load()
	if b.applied.IsZero() {
		return true
	}
	return now.Sub(b.applied) > maxAge
}
