package costmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result pairs a model value with its error.
type Result struct {
	Value Value
	Err   error
}

// Status tells whether a field was computed and, if not, why.
type Status struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func statusOf(r Result, present bool) Status {
	switch {
	case !present:
		return Status{Code: "not_evaluated", Reason: "not evaluated"}
	case r.Err != nil:
		return Status{Code: ErrorCode(r.Err), Reason: r.Err.Error()}
	default:
		return Status{OK: true}
	}
}

type Validity struct {
	Slippage   Status `json:"slippage"`
	Fee        Status `json:"fee"`
	Impact     Status `json:"impact"`
	MakerTaker Status `json:"maker_taker"`
	NetCost    Status `json:"net_cost"`
}

// CostEstimate is the immutable outcome of one recompute. USD amounts are in
// quote currency; rates are fractions of QuantityUSD.
type CostEstimate struct {
	ID         string      `json:"id"`
	Seq        uint64      `json:"seq"`
	BookTime   time.Time   `json:"book_time"`
	ComputedAt time.Time   `json:"computed_at"`
	Params     OrderParams `json:"params"`

	ExpectedSlippage      decimal.Decimal `json:"expected_slippage"`
	SlippageRate          decimal.Decimal `json:"slippage_rate"`
	AvgFillPrice          decimal.Decimal `json:"avg_fill_price"`
	PartiallyExtrapolated bool            `json:"partially_extrapolated"`

	ExpectedFee decimal.Decimal `json:"expected_fee"`
	FeeRate     decimal.Decimal `json:"fee_rate"`

	ExpectedImpact decimal.Decimal `json:"expected_impact"`
	ImpactRate     decimal.Decimal `json:"impact_rate"`

	NetCost decimal.Decimal `json:"net_cost"`

	MakerProportion float64 `json:"maker_proportion"`
	TakerProportion float64 `json:"taker_proportion"`

	InternalLatencyMs float64 `json:"internal_latency_ms"`
	Stale             bool    `json:"stale"`

	Validity Validity `json:"validity"`
}

// Compose assembles an estimate from per-model results:
// net_cost = slippage_rate*Q + fee + impact. Net cost is valid only when all
// three terms are.
func Compose(p OrderParams, results map[Kind]Result) CostEstimate {
	est := CostEstimate{Params: p}

	slip, ok := results[KindSlippage]
	est.Validity.Slippage = statusOf(slip, ok)
	if est.Validity.Slippage.OK {
		est.SlippageRate = slip.Value.Rate
		est.ExpectedSlippage = slip.Value.Rate.Mul(p.QuantityUSD)
		est.AvgFillPrice = slip.Value.AvgPrice
		est.PartiallyExtrapolated = slip.Value.Extrapolated
	}

	fee, ok := results[KindFee]
	est.Validity.Fee = statusOf(fee, ok)
	if est.Validity.Fee.OK {
		est.FeeRate = fee.Value.Rate
		est.ExpectedFee = fee.Value.USD
	}

	impact, ok := results[KindImpact]
	est.Validity.Impact = statusOf(impact, ok)
	if est.Validity.Impact.OK {
		est.ImpactRate = impact.Value.Rate
		est.ExpectedImpact = impact.Value.USD
	}

	mt, ok := results[KindMakerTaker]
	est.Validity.MakerTaker = statusOf(mt, ok)
	if est.Validity.MakerTaker.OK {
		est.MakerProportion = mt.Value.MakerProportion
		est.TakerProportion = mt.Value.TakerProportion
	}

	for _, st := range []Status{est.Validity.Slippage, est.Validity.Fee, est.Validity.Impact} {
		if !st.OK {
			est.Validity.NetCost = Status{Code: st.Code, Reason: st.Reason}
			return est
		}
	}
	est.Validity.NetCost = Status{OK: true}
	est.NetCost = est.ExpectedSlippage.Add(est.ExpectedFee).Add(est.ExpectedImpact)
	return est
}
