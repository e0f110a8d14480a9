// Package rest exposes the simulator over HTTP/JSON.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradesim/internal/costmodel"
	"tradesim/internal/latency"
	"tradesim/internal/orderbook"
	"tradesim/internal/simulator"
)

// MaxBookDepth bounds GET /book.
const MaxBookDepth = 400

// Facade is what the routes read from and write to; *simulator.Simulator
// satisfies it.
type Facade interface {
	State() simulator.State
	Latest() (costmodel.CostEstimate, bool)
	Params() costmodel.OrderParams
	SetParams(p costmodel.OrderParams) error
	Book(depth int) orderbook.Snapshot
	Latency() []latency.Stats
}

type Server struct {
	mux    *http.ServeMux
	sim    Facade
	logger zerolog.Logger
}

func New(sim Facade, logger zerolog.Logger) *Server {
	s := &Server{mux: http.NewServeMux(), sim: sim, logger: logger.With().Str("component", "rest").Logger()}
	s.mux.HandleFunc("GET /estimate", s.estimate)
	s.mux.HandleFunc("GET /book", s.book)
	s.mux.HandleFunc("GET /latency", s.latency)
	s.mux.HandleFunc("GET /state", s.state)
	s.mux.HandleFunc("GET /params", s.params)
	s.mux.HandleFunc("PUT /params", s.putParams)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	est, ok := s.sim.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no estimate yet; state "+s.sim.State().String())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) book(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxBookDepth {
			writeError(w, http.StatusBadRequest, "depth must be an integer in [1, "+strconv.Itoa(MaxBookDepth)+"]")
			return
		}
		depth = n
	}
	writeJSON(w, http.StatusOK, bookView(s.sim.Book(depth)))
}

type bookResponse struct {
	orderbook.Snapshot
	Mid    *decimal.Decimal `json:"mid,omitempty"`
	Spread *decimal.Decimal `json:"spread,omitempty"`
}

func bookView(snap orderbook.Snapshot) bookResponse {
	out := bookResponse{Snapshot: snap}
	if mid, ok := snap.Mid(); ok {
		out.Mid = &mid
	}
	if spread, ok := snap.Spread(); ok {
		out.Spread = &spread
	}
	return out
}

type latencyView struct {
	Name   string  `json:"name"`
	LastMs float64 `json:"last_ms"`
	MeanMs float64 `json:"mean_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	Window int     `json:"window"`
	Total  uint64  `json:"total"`
}

func (s *Server) latency(w http.ResponseWriter, r *http.Request) {
	all := s.sim.Latency()
	out := make([]latencyView, 0, len(all))
	for _, st := range all {
		out = append(out, latencyView{
			Name:   st.Name,
			LastMs: ms(st.Last),
			MeanMs: ms(st.Mean),
			MinMs:  ms(st.Min),
			MaxMs:  ms(st.Max),
			Window: st.Count,
			Total:  st.Total,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

type stateResponse struct {
	State simulator.State `json:"state"`
	Seq   uint64          `json:"seq"`
	Stale bool            `json:"stale"`
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{State: s.sim.State()}
	if est, ok := s.sim.Latest(); ok {
		resp.Seq = est.Seq
		resp.Stale = est.Stale
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Params())
}

// paramsRequest is a partial update; omitted fields keep their value.
type paramsRequest struct {
	QuantityUSD *decimal.Decimal `json:"quantity_usd"`
	Volatility  *decimal.Decimal `json:"volatility"`
	FeeTier     *string          `json:"fee_tier"`
	Side        *string          `json:"side"`
}

func (s *Server) putParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	p := s.sim.Params()
	if req.QuantityUSD != nil {
		p.QuantityUSD = *req.QuantityUSD
	}
	if req.Volatility != nil {
		p.Volatility = *req.Volatility
	}
	if req.FeeTier != nil {
		p.FeeTier = *req.FeeTier
	}
	if req.Side != nil {
		side, err := costmodel.ParseOrderSide(*req.Side)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.Side = side
	}

	err := s.sim.SetParams(p)
	switch {
	case errors.Is(err, costmodel.ErrInvalidParams), errors.Is(err, costmodel.ErrUnknownFeeTier):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, simulator.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("set params")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
