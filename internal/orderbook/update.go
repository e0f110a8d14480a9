package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags a BookUpdate as a full snapshot or an incremental delta.
type Kind uint8

const (
	KindSnapshot Kind = iota + 1
	KindDelta
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Change sets the size resting at price on side. A zero size removes the level.
type Change struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Update is one decoded feed message.
//
// Snapshot updates carry Bids and Asks (any order); delta updates carry Changes.
// When HasPrev is set the venue publishes explicit predecessor ids and PrevSeq
// must equal the last applied sequence; otherwise Seq must be exactly one greater.
type Update struct {
	Kind      Kind
	Seq       uint64
	PrevSeq   uint64
	HasPrev   bool
	Timestamp time.Time

	Bids    []Level
	Asks    []Level
	Changes []Change
}

func NewSnapshot(seq uint64, ts time.Time, bids, asks []Level) Update {
	return Update{Kind: KindSnapshot, Seq: seq, Timestamp: ts, Bids: bids, Asks: asks}
}

func NewDelta(seq uint64, ts time.Time, changes ...Change) Update {
	return Update{Kind: KindDelta, Seq: seq, Timestamp: ts, Changes: changes}
}

// WithPrev links the update to an explicit predecessor sequence id.
func (u Update) WithPrev(prev uint64) Update {
	u.PrevSeq = prev
	u.HasPrev = true
	return u
}

// follows reports whether u may be applied on top of lastSeq.
func (u Update) follows(lastSeq uint64) bool {
	if u.HasPrev {
		return u.PrevSeq == lastSeq
	}
	return u.Seq == lastSeq+1
}

func (u Update) validate() error {
	switch u.Kind {
	case KindSnapshot:
		if len(u.Changes) > 0 {
			return fmt.Errorf("%w: snapshot carries %d delta changes", ErrMalformedUpdate, len(u.Changes))
		}
		if err := validateLevels(Bid, u.Bids); err != nil {
			return err
		}
		return validateLevels(Ask, u.Asks)
	case KindDelta:
		if len(u.Bids) > 0 || len(u.Asks) > 0 {
			return fmt.Errorf("%w: delta carries snapshot levels", ErrMalformedUpdate)
		}
		seen := make(map[string]struct{}, len(u.Changes))
		for _, c := range u.Changes {
			if !c.Side.Valid() {
				return fmt.Errorf("%w: %s at %s", ErrMalformedUpdate, c.Side, c.Price)
			}
			if err := validatePriceSize(c.Side, c.Price, c.Size); err != nil {
				return err
			}
			key := c.Side.String() + ":" + c.Price.String()
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: %s %s repeated in one delta", ErrMalformedUpdate, c.Side, c.Price)
			}
			seen[key] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMalformedUpdate, u.Kind)
	}
}

func validateLevels(side Side, levels []Level) error {
	seen := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		if err := validatePriceSize(side, l.Price, l.Size); err != nil {
			return err
		}
		key := l.Price.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate %s price %s in snapshot", ErrMalformedUpdate, side, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validatePriceSize(side Side, price, size decimal.Decimal) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: %s price %s not positive", ErrMalformedUpdate, side, price)
	}
	if size.Sign() < 0 {
		return fmt.Errorf("%w: %s size %s at %s negative", ErrMalformedUpdate, side, size, price)
	}
	return nil
}
