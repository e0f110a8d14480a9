// Package costmodel estimates the transaction cost of an order against an L2
// book snapshot. The four models are stateless; everything they need is passed
// in on each call.
package costmodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

var (
	// ErrInsufficientDepth means the snapshot has no levels on the side the order consumes.
	ErrInsufficientDepth = errors.New("costmodel: insufficient depth")
	// ErrUnknownFeeTier means the requested tier is not in the fee table.
	ErrUnknownFeeTier = errors.New("costmodel: unknown fee tier")
	// ErrInvalidParams is returned for order parameters no model can price.
	ErrInvalidParams = errors.New("costmodel: invalid order params")
	// ErrNonFinite means a float intermediate overflowed or became NaN.
	ErrNonFinite = errors.New("costmodel: non-finite result")
)

// Upper bounds on order parameters. Volatility is annualized as a fraction.
var (
	MaxQuantityUSD = decimal.New(1, 12)
	MaxVolatility  = decimal.NewFromInt(100)
)

// ErrorCode maps a model error to a fixed short code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientDepth):
		return "insufficient_depth"
	case errors.Is(err, ErrUnknownFeeTier):
		return "unknown_fee_tier"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrNonFinite):
		return "non_finite"
	default:
		return "other"
	}
}

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: side %q", ErrInvalidParams, s)
	}
}

// Consumes is the book side a market order on s takes liquidity from.
func (s OrderSide) Consumes() orderbook.Side {
	if s == Sell {
		return orderbook.Bid
	}
	return orderbook.Ask
}

type OrderParams struct {
	QuantityUSD decimal.Decimal `json:"quantity_usd"`
	Volatility  decimal.Decimal `json:"volatility"`
	FeeTier     string          `json:"fee_tier"`
	Side        OrderSide       `json:"side"`
}

// Validate checks the fields every model relies on. The fee tier is checked by
// the fee model against its table.
func (p OrderParams) Validate() error {
	if p.QuantityUSD.Sign() <= 0 || p.QuantityUSD.GreaterThan(MaxQuantityUSD) {
		return fmt.Errorf("%w: quantity_usd %s must be in (0, %s]", ErrInvalidParams, p.QuantityUSD, MaxQuantityUSD)
	}
	if p.Volatility.Sign() < 0 || p.Volatility.GreaterThan(MaxVolatility) {
		return fmt.Errorf("%w: volatility %s must be in [0, %s]", ErrInvalidParams, p.Volatility, MaxVolatility)
	}
	if p.Side != Buy && p.Side != Sell {
		return fmt.Errorf("%w: side %q", ErrInvalidParams, p.Side)
	}
	return nil
}

// Kind tags the four model variants.
type Kind uint8

const (
	KindImpact Kind = iota + 1
	KindSlippage
	KindFee
	KindMakerTaker
)

func (k Kind) String() string {
	switch k {
	case KindImpact:
		return "impact"
	case KindSlippage:
		return "slippage"
	case KindFee:
		return "fee"
	case KindMakerTaker:
		return "maker_taker"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one model's output. Rate is a fraction of the order notional and
// USD the same cost in quote terms; the maker/taker model sets only the
// proportions.
type Value struct {
	Kind Kind
	Rate decimal.Decimal
	USD  decimal.Decimal

	// slippage
	AvgPrice     decimal.Decimal
	Extrapolated bool

	// maker/taker
	MakerProportion float64
	TakerProportion float64
}

// Model is implemented by exactly the four variants in this package.
type Model interface {
	Kind() Kind
	Evaluate(snap orderbook.Snapshot, p OrderParams) (Value, error)
}
