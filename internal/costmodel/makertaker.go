package costmodel

import (
	"math"

	"tradesim/internal/orderbook"
)

// MakerTakerWeights are the logistic classifier coefficients. Spread is fed in
// basis points of mid; imbalance is (consumed - opposite) / (consumed + opposite)
// visible notional, in [-1, 1].
type MakerTakerWeights struct {
	Intercept  float64 `yaml:"intercept" json:"intercept"`
	Quantity   float64 `yaml:"quantity" json:"quantity"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Spread     float64 `yaml:"spread" json:"spread"`
	Imbalance  float64 `yaml:"imbalance" json:"imbalance"`
}

// feature bounds; inputs outside are clamped
const (
	maxQuantityUSD = 1e12
	maxVolatility  = 100
	maxSpreadBps   = 1e4
	maxLogit       = 50
)

// MakerTaker predicts the taker probability p with a logistic function and
// returns (1-p, p). It has no error path beyond invalid params.
type MakerTaker struct {
	Weights MakerTakerWeights
}

func (MakerTaker) Kind() Kind { return KindMakerTaker }

func (m MakerTaker) Evaluate(snap orderbook.Snapshot, p OrderParams) (Value, error) {
	qty := clamp(p.QuantityUSD.InexactFloat64(), 0, maxQuantityUSD)
	vol := clamp(p.Volatility.InexactFloat64(), 0, maxVolatility)

	var spreadBps float64
	if spread, ok := snap.Spread(); ok {
		if mid, ok := snap.Mid(); ok && mid.Sign() > 0 {
			spreadBps = spread.Div(mid).InexactFloat64() * 1e4
		}
	}
	spreadBps = clamp(spreadBps, 0, maxSpreadBps)

	side := p.Side.Consumes()
	other := orderbook.Bid
	if side == orderbook.Bid {
		other = orderbook.Ask
	}
	var imbalance float64
	c, o := snap.Depth(side).InexactFloat64(), snap.Depth(other).InexactFloat64()
	if c+o > 0 {
		imbalance = (c - o) / (c + o)
	}
	imbalance = clamp(imbalance, -1, 1)

	w := m.Weights
	z := w.Intercept + w.Quantity*qty + w.Volatility*vol + w.Spread*spreadBps + w.Imbalance*imbalance
	z = clamp(z, -maxLogit, maxLogit)
	taker := 1 / (1 + math.Exp(-z))

	return Value{Kind: KindMakerTaker, MakerProportion: 1 - taker, TakerProportion: taker}, nil
}

// clamp also maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
