package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one ladder of the book.
type Side uint8

const (
	Bid Side = iota + 1
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Valid reports whether s is Bid or Ask.
func (s Side) Valid() bool { return s == Bid || s == Ask }

// better reports whether price a ranks ahead of price b on side s.
func (s Side) better(a, b decimal.Decimal) bool {
	if s == Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Level is one aggregated price level.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Notional is price times size.
func (l Level) Notional() decimal.Decimal { return l.Price.Mul(l.Size) }

// Snapshot is an immutable top-N view of the book taken at one applied sequence.
// Bids are sorted desc by price, asks asc.
type Snapshot struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
}

// Levels returns the ladder for side.
func (s Snapshot) Levels(side Side) []Level {
	if side == Bid {
		return s.Bids
	}
	return s.Asks
}

func (s Snapshot) BestBid() (Level, bool) { return first(s.Bids) }
func (s Snapshot) BestAsk() (Level, bool) { return first(s.Asks) }

// Mid is the arithmetic mid of the touch; false when either side is empty.
func (s Snapshot) Mid() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread is best ask minus best bid; false when either side is empty.
func (s Snapshot) Spread() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Depth sums the notional resting on side within the snapshot.
func (s Snapshot) Depth(side Side) decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Levels(side) {
		total = total.Add(l.Notional())
	}
	return total
}

func first(levels []Level) (Level, bool) {
	if len(levels) == 0 {
		return Level{}, false
	}
	return levels[0], true
}
