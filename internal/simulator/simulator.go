// Package simulator keeps one instrument's book current from a feed and
// recomputes the cost estimate after every applied update.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradesim/internal/costmodel"
	"tradesim/internal/exchange/common"
	"tradesim/internal/feed"
	"tradesim/internal/infra/metrics"
	"tradesim/internal/latency"
	"tradesim/internal/orderbook"
)

// ErrStopped is returned by calls made after Stop.
var ErrStopped = errors.New("simulator: stopped")

// OpApply is the latency tracker name for store updates.
const OpApply = "apply"

// Consumer receives every delivered estimate, in order, from one goroutine.
// Deliver must not call Simulator.Stop: Stop waits for the delivery in
// progress and would deadlock.
type Consumer interface {
	Deliver(ctx context.Context, est costmodel.CostEstimate) error
}

type ConsumerFunc func(ctx context.Context, est costmodel.CostEstimate) error

func (f ConsumerFunc) Deliver(ctx context.Context, est costmodel.CostEstimate) error { return f(ctx, est) }

type Config struct {
	Store   *orderbook.Store
	Decoder *feed.Decoder
	Suite   *costmodel.Suite
	Tracker *latency.Tracker
	// Requester may be nil when every frame carries a full book.
	Requester common.SnapshotRequester
	Consumer  Consumer
	Params    costmodel.OrderParams

	Exchange      string
	StaleAfter    time.Duration
	ResyncTimeout time.Duration
	OnStateChange func(from, to State)
}

type Simulator struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	state  atomic.Int32
	params atomic.Pointer[costmodel.OrderParams]
	latest atomic.Pointer[costmodel.CostEstimate]

	trigger   chan struct{}
	stopped   chan struct{}
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// deliverMu orders the stopped check in deliver against Stop.
	deliverMu sync.Mutex

	// owned by the event goroutine
	syncRequestedAt time.Time

	afterEvaluate func() // test hook
}

func New(cfg Config, logger zerolog.Logger) (*Simulator, error) {
	if cfg.Store == nil || cfg.Decoder == nil || cfg.Suite == nil || cfg.Consumer == nil {
		return nil, errors.New("simulator: store, decoder, suite and consumer are required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = latency.New(latency.DefaultWindow)
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Second
	}
	if cfg.ResyncTimeout <= 0 {
		cfg.ResyncTimeout = 10 * time.Second
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "okx"
	}
	if err := cfg.Suite.ValidateParams(cfg.Params); err != nil {
		return nil, fmt.Errorf("simulator: initial params: %w", err)
	}
	s := &Simulator{
		cfg:     cfg,
		logger:  logger.With().Str("component", "simulator").Logger(),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	p := cfg.Params
	s.params.Store(&p)
	return s, nil
}

func (s *Simulator) State() State { return State(s.state.Load()) }

// Latest is the last delivered estimate.
func (s *Simulator) Latest() (costmodel.CostEstimate, bool) {
	est := s.latest.Load()
	if est == nil {
		return costmodel.CostEstimate{}, false
	}
	return *est, true
}

func (s *Simulator) Params() costmodel.OrderParams { return *s.params.Load() }

// Book returns the top depth levels; depth <= 0 uses the model depth.
func (s *Simulator) Book(depth int) orderbook.Snapshot {
	if depth <= 0 {
		depth = s.cfg.Suite.Depth()
	}
	return s.cfg.Store.Snapshot(depth)
}

func (s *Simulator) Latency() []latency.Stats { return s.cfg.Tracker.All() }

// SetParams replaces the order being priced and schedules a recompute.
func (s *Simulator) SetParams(p costmodel.OrderParams) error {
	if s.State() == Stopped {
		return ErrStopped
	}
	if err := s.cfg.Suite.ValidateParams(p); err != nil {
		return err
	}
	s.params.Store(&p)
	s.logger.Info().Str("quantity_usd", p.QuantityUSD.String()).Str("side", string(p.Side)).Str("fee_tier", p.FeeTier).Msg("order params updated")
	if s.State() == Streaming {
		s.kick()
	}
	return nil
}

// Start leaves Idle, asks for the first snapshot and starts the recompute worker.
func (s *Simulator) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.setState(Syncing)
		s.requestSnapshot(ctx)
		s.wg.Add(1)
		go s.worker(ctx)
	})
}

// Run consumes events until ctx is done, the channel closes or Stop is called.
func (s *Simulator) Run(ctx context.Context, events <-chan feed.Event) error {
	s.Start(ctx)
	defer s.Stop()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case ev, ok := <-events:
			if !ok {
				s.logger.Info().Msg("feed closed")
				return nil
			}
			if err := s.HandleEvent(ctx, ev); errors.Is(err, ErrStopped) {
				return nil
			}
		case <-tick.C:
			s.housekeeping(ctx)
		}
	}
}

// Stop is terminal. Any recompute still running is discarded and later
// events are refused.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		s.setState(Stopped)
		close(s.stopped)
		if s.cancel != nil {
			s.cancel()
		}
		// wait out a delivery that passed its stopped check
		s.deliverMu.Lock()
		s.deliverMu.Unlock()
		s.wg.Wait()
	})
}

// HandleEvent processes one feed event. It must be called from a single
// goroutine in arrival order; Run does that.
func (s *Simulator) HandleEvent(ctx context.Context, ev feed.Event) error {
	if s.State() == Stopped {
		return ErrStopped
	}
	switch ev.Kind {
	case feed.EventConnected:
		// a fresh subscription replays a snapshot
		s.syncRequestedAt = s.now()
		if s.State() != Syncing {
			s.setState(Syncing)
		}
		return nil
	case feed.EventDisconnected:
		s.logger.Warn().Err(ev.Err).Msg("feed disconnected; awaiting snapshot")
		s.setState(Syncing)
		return nil
	case feed.EventFrame:
		return s.handleFrame(ctx, ev)
	default:
		return fmt.Errorf("simulator: unknown event kind %d", ev.Kind)
	}
}

func (s *Simulator) handleFrame(ctx context.Context, ev feed.Event) error {
	u, err := s.cfg.Decoder.Decode(ev.Data)
	switch {
	case errors.Is(err, feed.ErrControlFrame):
		s.logger.Debug().Err(err).Msg("control frame")
		return nil
	case err != nil:
		metrics.MalformedUpdatesTotal.Inc()
		s.logger.Warn().Err(err).Msg("frame dropped")
		return err
	}

	if st := s.State(); st != Streaming {
		if u.Kind != orderbook.KindSnapshot {
			s.logger.Debug().Uint64("seq", u.Seq).Str("state", st.String()).Msg("delta ignored while syncing")
			return nil
		}
	}
	err = s.apply(u)
	switch {
	case errors.Is(err, orderbook.ErrOutOfSequence):
		metrics.SequenceGapsTotal.Inc()
		s.logger.Warn().Err(err).Msg("sequence gap; resyncing")
		s.setState(Resyncing)
		s.requestSnapshot(ctx)
		s.setState(Syncing)
		return err
	case err != nil:
		metrics.MalformedUpdatesTotal.Inc()
		s.logger.Warn().Err(err).Uint64("seq", u.Seq).Msg("update dropped")
		return err
	}

	if u.Kind == orderbook.KindSnapshot {
		reason := "sync"
		if s.State() == Streaming {
			reason = "venue"
		}
		metrics.BookRebuildsTotal.WithLabelValues(s.cfg.Exchange, reason).Inc()
		s.setState(Streaming)
	}
	s.kick()
	return nil
}

func (s *Simulator) apply(u orderbook.Update) error {
	span := s.cfg.Tracker.Measure(OpApply)
	defer span.End()
	if err := s.cfg.Store.Apply(u); err != nil {
		return err
	}
	metrics.BookUpdatesTotal.WithLabelValues(u.Kind.String()).Inc()
	metrics.BookLevels.WithLabelValues(orderbook.Bid.String()).Set(float64(s.cfg.Store.Len(orderbook.Bid)))
	metrics.BookLevels.WithLabelValues(orderbook.Ask.String()).Set(float64(s.cfg.Store.Len(orderbook.Ask)))
	return nil
}

// kick schedules a recompute. At most one is pending; extra triggers fold
// into it.
func (s *Simulator) kick() {
	select {
	case s.trigger <- struct{}{}:
	default:
		metrics.RecomputesTotal.WithLabelValues("coalesced").Inc()
	}
}

func (s *Simulator) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-s.trigger:
			s.recompute(ctx)
		}
	}
}

func (s *Simulator) recompute(ctx context.Context) {
	if s.State() == Stopped {
		return
	}
	params := *s.params.Load()
	span := s.cfg.Tracker.Measure(costmodel.OpSnapshot)
	snap := s.cfg.Store.Snapshot(s.cfg.Suite.Depth())
	span.End()

	est := s.cfg.Suite.Evaluate(snap, params, s.cfg.Tracker)
	est.ID = uuid.NewString()
	est.Stale = s.cfg.Store.IsStale(s.now(), s.cfg.StaleAfter)
	if s.afterEvaluate != nil {
		s.afterEvaluate()
	}
	s.deliver(ctx, est)
}

func (s *Simulator) deliver(ctx context.Context, est costmodel.CostEstimate) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.State() == Stopped {
		metrics.RecomputesTotal.WithLabelValues("discarded").Inc()
		return
	}
	metrics.RecomputesTotal.WithLabelValues("run").Inc()
	s.latest.Store(&est)
	observe(est)
	if err := s.cfg.Consumer.Deliver(ctx, est); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Str("estimate", est.ID).Msg("estimate delivery failed")
	}
}

func observe(est costmodel.CostEstimate) {
	v := est.Validity
	for kind, st := range map[costmodel.Kind]costmodel.Status{
		costmodel.KindSlippage:   v.Slippage,
		costmodel.KindFee:        v.Fee,
		costmodel.KindImpact:     v.Impact,
		costmodel.KindMakerTaker: v.MakerTaker,
	} {
		if !st.OK {
			metrics.ModelErrorsTotal.WithLabelValues(kind.String(), st.Code).Inc()
		}
	}
	if v.NetCost.OK {
		metrics.EstimateNetCostUSD.Set(est.NetCost.InexactFloat64())
	}
	if v.Slippage.OK {
		metrics.EstimateSlippageBps.Set(est.SlippageRate.InexactFloat64() * 1e4)
	}
	if v.MakerTaker.OK {
		metrics.EstimateTakerRatio.Set(est.TakerProportion)
	}
}

func (s *Simulator) requestSnapshot(ctx context.Context) {
	s.syncRequestedAt = s.now()
	if s.cfg.Requester == nil {
		return
	}
	if err := s.cfg.Requester.RequestSnapshot(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("snapshot request failed; will retry")
	}
}

// housekeeping re-requests a snapshot that has not arrived in time and
// exports book staleness.
func (s *Simulator) housekeeping(ctx context.Context) {
	now := s.now()
	if s.State() == Syncing && now.Sub(s.syncRequestedAt) >= s.cfg.ResyncTimeout {
		s.logger.Info().Dur("waited", now.Sub(s.syncRequestedAt)).Msg("snapshot overdue; requesting again")
		s.requestSnapshot(ctx)
	}
	metrics.BookStalenessMs.WithLabelValues(s.cfg.Exchange).Set(float64(s.cfg.Store.Age(now).Milliseconds()))
}

// setState moves to next unless already Stopped.
func (s *Simulator) setState(next State) {
	for {
		cur := State(s.state.Load())
		if cur == Stopped || cur == next {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			metrics.FacadeState.Set(float64(next))
			s.logger.Info().Str("from", cur.String()).Str("to", next.String()).Msg("state change")
			if s.cfg.OnStateChange != nil {
				s.cfg.OnStateChange(cur, next)
			}
			return
		}
	}
}
