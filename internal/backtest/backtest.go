// Package backtest replays a strategy rule over a bar sequence, holding at
// most one long position, and summarizes the completed trades.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/strategy"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

// InitialEquity is the account value every run starts from.
const InitialEquity = 1000.0

const (
	ReasonSignal = "signal"
	ReasonEnd    = "end-of-backtest"
)

var (
	ErrInvalidInput     = errors.New("invalid backtest input")
	ErrInsufficientData = errors.New("insufficient data for backtest")
)

// Result is the summary of one run. Percent fields are already scaled by
// 100 and every number is rounded to 2 decimals.
type Result struct {
	Strategy            string    `json:"strategy"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	TotalReturnPct      float64   `json:"total_return_pct"`
	AnnualizedReturnPct float64   `json:"annualized_return_pct"`
	SharpeRatio         float64   `json:"sharpe_ratio"`
	MaxDrawdownPct      float64   `json:"max_drawdown_pct"`
	WinRatePct          float64   `json:"win_rate_pct"`
	TradeCount          int       `json:"trade_count"`
}

// Trade is one completed round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	Return     float64   `json:"return"`
	Reason     string    `json:"reason"`
}

// Report carries a Result together with the trade log that produced it.
type Report struct {
	RunID  string  `json:"run_id,omitempty"`
	Result Result  `json:"result"`
	Trades []Trade `json:"trades"`
}

type Engine struct {
	logger zerolog.Logger
}

type Option func(*Engine)

// WithLogger makes the engine log every trade at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(opts ...Option) *Engine {
	e := &Engine{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run backtests rule with a default engine and returns only the summary.
func Run(rule strategy.Rule, candles []candle.Candle) (Result, error) {
	report, err := New().Run(rule, candles)
	if err != nil {
		return Result{}, err
	}
	return report.Result, nil
}

// Run evaluates rule on every bar from its warm-up index on. Entries and
// exits fill at the bar close; a position still open after the last bar is
// closed at that bar's close.
func (e *Engine) Run(rule strategy.Rule, candles []candle.Candle) (Report, error) {
	if rule == nil {
		return Report{}, fmt.Errorf("%w: nil rule", ErrInvalidInput)
	}
	if len(candles) == 0 {
		return Report{}, fmt.Errorf("%w: no candles", ErrInvalidInput)
	}
	warmup := max(rule.WarmupPeriod(), 0)
	if len(candles) <= warmup {
		return Report{}, fmt.Errorf("%w: %s needs more than %d bars, got %d",
			ErrInsufficientData, rule.Name(), warmup, len(candles))
	}

	var (
		pos      position.State
		entry    time.Time
		trades   []Trade
		acc      = newAccount()
		eval     = rule.Bind(candles)
		lastIdx  = len(candles) - 1
		closeOut = func(i int, reason string) {
			c := candles[i]
			t := Trade{
				EntryTime:  entry,
				EntryPrice: pos.EntryPrice,
				ExitTime:   c.Timestamp,
				ExitPrice:  c.Close,
				Return:     pos.Close(c.Close),
				Reason:     reason,
			}
			acc.record(t.Return)
			trades = append(trades, t)

			e.logger.Debug().
				Str("strategy", rule.Name()).
				Time("entry_time", t.EntryTime).
				Float64("entry", t.EntryPrice).
				Time("exit_time", t.ExitTime).
				Float64("exit", t.ExitPrice).
				Float64("return", t.Return).
				Str("reason", reason).
				Msg("trade closed")
		}
	)

	for i := warmup; i <= lastIdx; i++ {
		switch sig := eval.Evaluate(i, pos); {
		case !pos.InPosition && sig == signal.Enter:
			pos.Open(candles[i].Close)
			entry = candles[i].Timestamp
		case pos.InPosition && sig == signal.Exit:
			closeOut(i, ReasonSignal)
		}
	}

	if pos.InPosition {
		closeOut(lastIdx, ReasonEnd)
	}

	if trades == nil {
		trades = []Trade{}
	}
	return Report{
		Result: acc.result(rule.Name(), candles[0].Timestamp, candles[lastIdx].Timestamp),
		Trades: trades,
	}, nil
}
