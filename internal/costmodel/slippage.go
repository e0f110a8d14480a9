package costmodel

import (
	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

// Slippage walks the consumed side best price first, filling QuantityUSD, and
// compares the size-weighted average price with the touch. Quantity left after
// the visible levels is filled at the worst visible price and the value is
// marked Extrapolated.
type Slippage struct{}

func (Slippage) Kind() Kind { return KindSlippage }

func (Slippage) Evaluate(snap orderbook.Snapshot, p OrderParams) (Value, error) {
	if err := p.Validate(); err != nil {
		return Value{}, err
	}
	levels := snap.Levels(p.Side.Consumes())
	if len(levels) == 0 {
		return Value{}, ErrInsufficientDepth
	}
	best := levels[0].Price

	remaining := p.QuantityUSD
	units := decimal.Zero
	touched := 0
	for _, l := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		take := decimal.Min(remaining, l.Notional())
		units = units.Add(take.Div(l.Price))
		remaining = remaining.Sub(take)
		touched++
	}
	v := Value{Kind: KindSlippage}
	if remaining.Sign() > 0 {
		worst := levels[len(levels)-1].Price
		units = units.Add(remaining.Div(worst))
		v.Extrapolated = true
	}

	// A fill that never leaves the touch is priced at the touch exactly,
	// without the rounding of Q / (Q / price).
	if touched == 1 {
		v.AvgPrice = best
	} else {
		v.AvgPrice = p.QuantityUSD.Div(units)
	}

	diff := v.AvgPrice.Sub(best)
	if p.Side == Sell {
		diff = best.Sub(v.AvgPrice)
	}
	v.Rate = diff.Div(best)
	v.USD = v.Rate.Mul(p.QuantityUSD)
	return v, nil
}
