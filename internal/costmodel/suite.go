package costmodel

import (
	"errors"
	"fmt"
	"time"

	"tradesim/internal/latency"
	"tradesim/internal/orderbook"
)

// Config holds the calibration of the suite. Coefficients and weights are
// supplied by the operator; the package carries no fitted values.
type Config struct {
	PermanentCoefficient float64
	TemporaryCoefficient float64
	DailyVolumeUSD       float64
	FeeTiers             []FeeTier
	TopLevelsDepth       int
	MakerTaker           MakerTakerWeights
}

// Latency tracker operation names.
const (
	OpRecompute = "recompute"
	OpSnapshot  = "snapshot"
)

// Suite evaluates the four models against one snapshot.
type Suite struct {
	depth  int
	fees   *FeeSchedule
	models []Model
}

func NewSuite(cfg Config) (*Suite, error) {
	if cfg.TopLevelsDepth <= 0 {
		return nil, fmt.Errorf("costmodel: top_levels_depth must be positive, got %d", cfg.TopLevelsDepth)
	}
	if cfg.PermanentCoefficient < 0 || cfg.TemporaryCoefficient < 0 {
		return nil, errors.New("costmodel: impact coefficients must not be negative")
	}
	fees, err := NewFeeSchedule(cfg.FeeTiers)
	if err != nil {
		return nil, err
	}
	return &Suite{
		depth: cfg.TopLevelsDepth,
		fees:  fees,
		models: []Model{
			Slippage{},
			Fee{Schedule: fees},
			Impact{Permanent: cfg.PermanentCoefficient, Temporary: cfg.TemporaryCoefficient, DailyVolumeUSD: cfg.DailyVolumeUSD},
			MakerTaker{Weights: cfg.MakerTaker},
		},
	}, nil
}

// Depth is the number of levels per side the suite wants in a snapshot.
func (s *Suite) Depth() int { return s.depth }

// Evaluate runs every model under tr and composes the results. A model error
// marks its fields invalid; the other models still run.
func (s *Suite) Evaluate(snap orderbook.Snapshot, p OrderParams, tr *latency.Tracker) CostEstimate {
	span := tr.Measure(OpRecompute)
	results := make(map[Kind]Result, len(s.models))
	for _, m := range s.models {
		results[m.Kind()] = evaluate(m, snap, p, tr)
	}
	est := Compose(p, results)
	est.Seq = snap.Seq
	est.BookTime = snap.Timestamp
	est.ComputedAt = time.Now()
	est.InternalLatencyMs = float64(span.End()) / float64(time.Millisecond)
	return est
}

func evaluate(m Model, snap orderbook.Snapshot, p OrderParams, tr *latency.Tracker) Result {
	defer tr.Measure(m.Kind().String()).End()
	v, err := m.Evaluate(snap, p)
	return Result{Value: v, Err: err}
}

// ValidateParams checks p including the fee tier.
func (s *Suite) ValidateParams(p OrderParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !s.fees.Has(p.FeeTier) {
		return fmt.Errorf("%w: %q", ErrUnknownFeeTier, p.FeeTier)
	}
	return nil
}
