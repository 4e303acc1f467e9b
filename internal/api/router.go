// Package api serves indicators, resampling and backtests over HTTP JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirphl/strategy-lab/internal/backtest"
	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/indicator"
	"github.com/amirphl/strategy-lab/internal/metrics"
	"github.com/amirphl/strategy-lab/internal/runner"
	"github.com/amirphl/strategy-lab/internal/strategy"
)

// maxBodyBytes bounds request bodies; a few years of minute bars fit.
const maxBodyBytes = 32 << 20

type Server struct {
	runner  *runner.Runner
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewServer(r *runner.Runner, m *metrics.Metrics, l zerolog.Logger) *Server {
	return &Server{runner: r, metrics: m, logger: l}
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(s *Server) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/v1/indicators", s.listIndicators)
	mux.HandleFunc("POST /api/v1/indicators/{kind}", s.computeIndicator)
	mux.HandleFunc("POST /api/v1/resample", s.resample)
	mux.HandleFunc("POST /api/v1/backtests", s.runBacktests)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

type indicatorRequest struct {
	Candles []candle.Candle  `json:"candles"`
	Params  indicator.Params `json:"params"`
}

type indicatorResponse struct {
	Kind   indicator.Kind   `json:"kind"`
	Params indicator.Params `json:"params"`
	Lines  indicator.Output `json:"lines"`
}

type resampleRequest struct {
	Candles   []candle.Candle `json:"candles"`
	Sampling  string          `json:"sampling,omitempty"`
	Timeframe string          `json:"timeframe,omitempty"`
}

type candlesResponse struct {
	Candles []candle.Candle `json:"candles"`
}

type backtestRequest struct {
	Candles    []candle.Candle `json:"candles"`
	Sampling   string          `json:"sampling,omitempty"`
	ResampleTo string          `json:"resample_to,omitempty"`
	Strategies []strategy.Spec `json:"strategies"`
}

type backtestResponse struct {
	Reports []backtest.Report `json:"reports"`
	Summary runner.Summary    `json:"summary"`
}

func (s *Server) listIndicators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]indicator.Kind{"kinds": indicator.Kinds()})
}

func (s *Server) computeIndicator(w http.ResponseWriter, r *http.Request) {
	kind, err := indicator.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var req indicatorRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := candle.ValidateAll(req.Candles); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	out, err := indicator.Compute(kind, req.Candles, req.Params)
	s.metrics.ObserveIndicator(string(kind), time.Since(start))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, indicatorResponse{Kind: kind, Params: req.Params.WithDefaults(kind), Lines: out})
}

func (s *Server) resample(w http.ResponseWriter, r *http.Request) {
	var req resampleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := candle.ValidateAll(req.Candles); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sampling := req.Sampling
	if sampling == "" {
		sampling = runner.SamplingVolume
	}
	out, err := runner.Prepare(req.Candles, sampling, req.Timeframe)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if out == nil {
		out = []candle.Candle{}
	}
	writeJSON(w, http.StatusOK, candlesResponse{Candles: out})
}

func (s *Server) runBacktests(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Strategies) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no strategies requested"))
		return
	}

	reports, err := s.runner.RunCandles(r.Context(), req.Candles, runner.Request{
		Sampling:   req.Sampling,
		ResampleTo: req.ResampleTo,
		Strategies: req.Strategies,
	})
	switch {
	case errors.Is(err, backtest.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, backtestResponse{Reports: reports, Summary: runner.Summarize(reports)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("bad request body")
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
