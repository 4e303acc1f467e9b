// Package runner loads candles, prepares them, and backtests several
// strategies over the same sequence concurrently.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amirphl/strategy-lab/internal/backtest"
	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/db"
	"github.com/amirphl/strategy-lab/internal/metrics"
	"github.com/amirphl/strategy-lab/internal/strategy"
)

const (
	SamplingTime   = "time"
	SamplingVolume = "volume"
)

var (
	ErrNoCandles   = errors.New("no candles")
	ErrBadSampling = errors.New("unknown sampling")
)

// Request describes one batch of backtests over a single candle sequence.
type Request struct {
	Symbol     string          `json:"symbol,omitempty"`
	Timeframe  string          `json:"timeframe,omitempty"`
	From       time.Time       `json:"from,omitempty"`
	To         time.Time       `json:"to,omitempty"`
	Sampling   string          `json:"sampling,omitempty"`
	ResampleTo string          `json:"resample_to,omitempty"`
	Strategies []strategy.Spec `json:"strategies"`
}

type Runner struct {
	storage db.Reader
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Runner)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New builds a runner. storage may be nil when only RunCandles is used.
func New(storage db.Reader, opts ...Option) *Runner {
	r := &Runner{storage: storage, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loads the requested candles from storage and backtests them.
func (r *Runner) Run(ctx context.Context, req Request) ([]backtest.Report, error) {
	if r.storage == nil {
		return nil, errors.New("runner has no candle storage")
	}
	candles, err := r.storage.GetCandles(ctx, req.Symbol, req.Timeframe, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	r.logger.Info().
		Str("symbol", req.Symbol).
		Str("timeframe", req.Timeframe).
		Int("candles", len(candles)).
		Msg("loaded candles")

	return r.RunCandles(ctx, candles, req)
}

// RunCandles validates and prepares candles, then runs every requested
// strategy on its own goroutine. Reports follow the order of
// req.Strategies. The first failing run cancels the rest.
func (r *Runner) RunCandles(ctx context.Context, candles []candle.Candle, req Request) ([]backtest.Report, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	if err := candle.ValidateAll(candles); err != nil {
		return nil, err
	}

	rules := make([]strategy.Rule, len(req.Strategies))
	for i, spec := range req.Strategies {
		rule, err := strategy.New(spec)
		if err != nil {
			return nil, fmt.Errorf("strategy %d: %w", i, err)
		}
		rules[i] = rule
	}

	prepared, err := Prepare(candles, req.Sampling, req.ResampleTo)
	if err != nil {
		return nil, err
	}
	if len(prepared) != len(candles) {
		r.logger.Info().
			Str("sampling", req.Sampling).
			Int("input", len(candles)).
			Int("output", len(prepared)).
			Msg("resampled candles")
	}

	reports := make([]backtest.Report, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := r.runOne(rule, prepared)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Info().Interface("summary", Summarize(reports)).Msg("backtests finished")
	return reports, nil
}

func (r *Runner) runOne(rule strategy.Rule, candles []candle.Candle) (backtest.Report, error) {
	runID := uuid.NewString()
	log := r.logger.With().Str("run_id", runID).Str("strategy", rule.Name()).Logger()

	start := time.Now()
	report, err := backtest.New(backtest.WithLogger(log)).Run(rule, candles)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, backtest.ErrInsufficientData):
		r.metrics.ObserveBacktest(rule.Name(), metrics.OutcomeInsufficientData, 0, elapsed)
		return backtest.Report{}, err
	case err != nil:
		r.metrics.ObserveBacktest(rule.Name(), metrics.OutcomeError, 0, elapsed)
		return backtest.Report{}, err
	}

	report.RunID = runID
	r.metrics.ObserveBacktest(rule.Name(), metrics.OutcomeOK, report.Result.TradeCount, elapsed)
	backtest.LogReport(log, report)
	return report, nil
}

// Prepare applies the sampling stage. Volume sampling regroups bars by
// traded volume; time sampling optionally aggregates to a coarser
// timeframe. The input is never modified.
func Prepare(candles []candle.Candle, sampling, resampleTo string) ([]candle.Candle, error) {
	switch sampling {
	case SamplingVolume:
		return candle.ResampleByVolume(candles), nil
	case "", SamplingTime:
		if resampleTo == "" {
			return candle.SortByTime(candles), nil
		}
		return candle.ResampleByTime(candles, resampleTo)
	default:
		return nil, fmt.Errorf("%w %q", ErrBadSampling, sampling)
	}
}
