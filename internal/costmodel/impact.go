package costmodel

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

// Impact is an Almgren-Chriss style estimate:
//
//	rate = Permanent * volatility * sqrt(Q / ADV) + Temporary * Q / depth
//
// Q is the order notional, depth the notional resting on the consumed side of
// the snapshot and ADV the daily volume proxy. When DailyVolumeUSD is unset the
// visible notional of both sides stands in for ADV.
type Impact struct {
	Permanent      float64
	Temporary      float64
	DailyVolumeUSD float64
}

func (Impact) Kind() Kind { return KindImpact }

func (m Impact) Evaluate(snap orderbook.Snapshot, p OrderParams) (Value, error) {
	if err := p.Validate(); err != nil {
		return Value{}, err
	}
	side := p.Side.Consumes()
	depth := snap.Depth(side).InexactFloat64()
	if len(snap.Levels(side)) == 0 || depth <= 0 {
		return Value{}, ErrInsufficientDepth
	}
	adv := m.DailyVolumeUSD
	if adv <= 0 {
		adv = snap.Depth(orderbook.Bid).Add(snap.Depth(orderbook.Ask)).InexactFloat64()
	}

	q := p.QuantityUSD.InexactFloat64()
	vol := p.Volatility.InexactFloat64()
	permanent := m.Permanent * vol * math.Sqrt(q/adv)
	temporary := m.Temporary * q / depth
	rate := permanent + temporary
	usd := rate * q
	if !finite(rate) || !finite(usd) {
		return Value{}, fmt.Errorf("%w: impact rate %v", ErrNonFinite, rate)
	}

	return Value{
		Kind: KindImpact,
		Rate: decimal.NewFromFloat(rate),
		USD:  decimal.NewFromFloat(usd),
	}, nil
}

func finite(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }
