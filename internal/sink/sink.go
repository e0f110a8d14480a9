// Package sink fans delivered cost estimates out to logs and external stores.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tradesim/internal/costmodel"
	"tradesim/internal/infra/metrics"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, est costmodel.CostEstimate) error
}

// Multi delivers to every sink in order. A failing sink does not stop the rest.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	var kept []Sink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

func (m *Multi) Deliver(ctx context.Context, est costmodel.CostEstimate) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, est); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per estimate.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "sink").Logger()}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Deliver(_ context.Context, est costmodel.CostEstimate) error {
	ev := l.logger.Info().
		Str("id", est.ID).
		Uint64("seq", est.Seq).
		Str("side", string(est.Params.Side)).
		Str("quantity_usd", est.Params.QuantityUSD.String()).
		Float64("latency_ms", est.InternalLatencyMs).
		Bool("stale", est.Stale)
	if est.Validity.NetCost.OK {
		ev = ev.Str("net_cost", est.NetCost.StringFixed(6))
	} else {
		ev = ev.Str("net_cost_invalid", est.Validity.NetCost.Reason)
	}
	if est.Validity.Slippage.OK {
		ev = ev.Str("slippage", est.ExpectedSlippage.StringFixed(6)).Bool("extrapolated", est.PartiallyExtrapolated)
	}
	if est.Validity.MakerTaker.OK {
		ev = ev.Float64("taker", est.TakerProportion)
	}
	ev.Msg("estimate")
	return nil
}
