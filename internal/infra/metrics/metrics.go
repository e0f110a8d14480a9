package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	BookUpdatesTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_updates_total", Help: "Applied book updates by kind"}, []string{"kind"})
	SequenceGapsTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "book_sequence_gaps_total", Help: "Updates rejected as out of sequence"})
	MalformedUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "book_malformed_updates_total", Help: "Frames or updates dropped as malformed"})
	BookRebuildsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_rebuilds_total", Help: "Orderbook snapshot rebuilds by exchange and reason"}, []string{"exchange", "reason"})
	BookStalenessMs       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "book_staleness_ms", Help: "Time since the last applied update in ms by exchange"}, []string{"exchange"})
	BookLevels            = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "book_levels", Help: "Resting levels per side"}, []string{"side"})

	WSReconnectsTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ws_reconnects_total", Help: "WS reconnects by exchange and reason"}, []string{"exchange", "reason"})
	ResyncRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "resync_requests_total", Help: "Snapshot requests by outcome"}, []string{"outcome"})

	ModelLatencyMs   = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "model_latency_ms", Help: "Latency of timed operations in ms", Buckets: prometheus.ExponentialBuckets(0.005, 2, 16)}, []string{"operation"})
	ModelErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "model_errors_total", Help: "Cost model failures by model and reason"}, []string{"model", "reason"})

	RecomputesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "recomputes_total", Help: "Recompute cycles by outcome (run, coalesced, discarded)"}, []string{"outcome"})
	FacadeState     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "facade_state", Help: "Simulator state (0 idle, 1 syncing, 2 streaming, 3 resyncing, 4 stopped)"})

	EstimateNetCostUSD  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "estimate_net_cost_usd", Help: "Net cost of the last estimate"})
	EstimateSlippageBps = prometheus.NewGauge(prometheus.GaugeOpts{Name: "estimate_slippage_bps", Help: "Slippage of the last estimate in bps"})
	EstimateTakerRatio  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "estimate_taker_ratio", Help: "Taker proportion of the last estimate"})
	SinkErrorsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sink_errors_total", Help: "Estimate delivery failures by sink"}, []string{"sink"})
)

func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		BookUpdatesTotal, SequenceGapsTotal, MalformedUpdatesTotal, BookRebuildsTotal, BookStalenessMs, BookLevels,
		WSReconnectsTotal, ResyncRequestsTotal,
		ModelLatencyMs, ModelErrorsTotal,
		RecomputesTotal, FacadeState,
		EstimateNetCostUSD, EstimateSlippageBps, EstimateTakerRatio, SinkErrorsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info().Msg("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
