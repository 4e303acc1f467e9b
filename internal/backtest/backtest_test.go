package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/strategy"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

func createCandles(step time.Duration, closes ...float64) []candle.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * step),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// scripted replays fixed signals by bar index.
type scripted struct {
	warmup  int
	signals map[int]signal.Signal
}

func (s scripted) Name() string      { return "scripted" }
func (s scripted) WarmupPeriod() int { return s.warmup }
func (s scripted) Bind([]candle.Candle) strategy.Evaluator {
	return strategy.EvaluatorFunc(func(i int, _ position.State) signal.Signal {
		return s.signals[i]
	})
}

func TestRun_FlatSeries(t *testing.T) {
	candles := createCandles(24*time.Hour, repeat(100, 60)...)

	for _, spec := range []strategy.Spec{{Kind: strategy.KindCrossover}, {Kind: strategy.KindThreshold}} {
		t.Run(string(spec.Kind), func(t *testing.T) {
			rule, err := strategy.New(spec)
			require.NoError(t, err)

			res, err := Run(rule, candles)
			require.NoError(t, err)
			assert.Equal(t, 0, res.TradeCount)
			assert.Equal(t, 0.0, res.TotalReturnPct)
			assert.Equal(t, 0.0, res.AnnualizedReturnPct)
			assert.Equal(t, 0.0, res.MaxDrawdownPct)
			assert.Equal(t, 0.0, res.WinRatePct)
			assert.Equal(t, 0.0, res.SharpeRatio)
			assert.Equal(t, candles[0].Timestamp, res.StartDate)
			assert.Equal(t, candles[59].Timestamp, res.EndDate)
		})
	}
}

func TestRun_SingleCrossover(t *testing.T) {
	closes := append(repeat(100, 50), 101, 102, 103, 104, 105, 104.5, 104, 103.5, 103, 102.5)
	candles := createCandles(time.Hour, closes...)

	rule, err := strategy.NewCrossover(10, 50, strategy.AverageSMA)
	require.NoError(t, err)

	report, err := New().Run(rule, candles)
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	tr := report.Trades[0]
	assert.Equal(t, 101.0, tr.EntryPrice)
	assert.Equal(t, candles[50].Timestamp, tr.EntryTime)
	assert.Equal(t, 102.5, tr.ExitPrice)
	assert.Equal(t, ReasonEnd, tr.Reason)
	assert.Greater(t, tr.Return, 0.0)

	res := report.Result
	assert.Equal(t, "SMA Crossover (10/50)", res.Strategy)
	assert.Equal(t, 1, res.TradeCount)
	assert.Equal(t, 1.49, res.TotalReturnPct)
	assert.Equal(t, 100.0, res.WinRatePct)
	// 59 hours is below the minimum year fraction of 0.01.
	assert.Equal(t, 336.77, res.AnnualizedReturnPct)
	assert.Equal(t, 1.46, res.MaxDrawdownPct)
	assert.Equal(t, 0.0, res.SharpeRatio)
}

func TestRun_Statistics(t *testing.T) {
	candles := createCandles(24*time.Hour, 100, 100, 110, 100, 95)
	rule := scripted{warmup: 1, signals: map[int]signal.Signal{
		1: signal.Enter, 2: signal.Exit, 3: signal.Enter, 4: signal.Exit,
	}}

	report, err := New().Run(rule, candles)
	require.NoError(t, err)

	require.Len(t, report.Trades, 2)
	assert.Equal(t, ReasonSignal, report.Trades[0].Reason)
	assert.Equal(t, ReasonSignal, report.Trades[1].Reason)
	assert.InDelta(t, 0.10, report.Trades[0].Return, 1e-12)
	assert.InDelta(t, -0.05, report.Trades[1].Return, 1e-12)

	res := report.Result
	assert.Equal(t, 2, res.TradeCount)
	assert.Equal(t, 5.0, res.TotalReturnPct)
	assert.Equal(t, 50.0, res.WinRatePct)
	// equity 1000 -> 1100 -> 1045
	assert.Equal(t, 9.09, res.MaxDrawdownPct)
	// (1.05)^(365.25/4) - 1
	assert.Equal(t, 8506.92, res.AnnualizedReturnPct)
	// annualized / population stdev of (0.10, -0.05)
	assert.Equal(t, 1134.26, res.SharpeRatio)
}

func TestRun_SignalsFilteredByPosition(t *testing.T) {
	candles := createCandles(24*time.Hour, 100, 100, 120, 130, 90)
	rule := scripted{warmup: 0, signals: map[int]signal.Signal{
		0: signal.Exit,  // flat, ignored
		1: signal.Enter, // opens at 100
		2: signal.Enter, // already long, ignored
		3: signal.Exit,  // closes at 130
	}}

	report, err := New().Run(rule, candles)
	require.NoError(t, err)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, 100.0, report.Trades[0].EntryPrice)
	assert.Equal(t, 130.0, report.Trades[0].ExitPrice)
}

func TestRun_WarmupBarsNotEvaluated(t *testing.T) {
	candles := createCandles(24*time.Hour, 100, 100, 100, 120)
	rule := scripted{warmup: 2, signals: map[int]signal.Signal{0: signal.Enter, 1: signal.Enter}}

	report, err := New().Run(rule, candles)
	require.NoError(t, err)
	assert.Empty(t, report.Trades)
	assert.NotNil(t, report.Trades)
}

func TestRun_ForcedCloseUpdatesDrawdown(t *testing.T) {
	candles := createCandles(24*time.Hour, 100, 100, 90)
	rule := scripted{warmup: 1, signals: map[int]signal.Signal{1: signal.Enter}}

	report, err := New().Run(rule, candles)
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, ReasonEnd, report.Trades[0].Reason)
	assert.Equal(t, candles[2].Timestamp, report.Trades[0].ExitTime)
	assert.Equal(t, -10.0, report.Result.TotalReturnPct)
	assert.Equal(t, 10.0, report.Result.MaxDrawdownPct)
	assert.Equal(t, 0.0, report.Result.WinRatePct)
}

func TestRun_TotalLossAnnualizesToMinusHundred(t *testing.T) {
	candles := createCandles(24*time.Hour, 100, 100, 40, 100, 40)
	rule := scripted{warmup: 1, signals: map[int]signal.Signal{
		1: signal.Enter, 2: signal.Exit, 3: signal.Enter, 4: signal.Exit,
	}}

	res, err := Run(rule, candles)
	require.NoError(t, err)
	assert.Equal(t, -120.0, res.TotalReturnPct)
	assert.Equal(t, -100.0, res.AnnualizedReturnPct)
	assert.Equal(t, 84.0, res.MaxDrawdownPct)
	assert.False(t, math.IsNaN(res.SharpeRatio))
}

func TestRun_ThresholdExitsWhenRSIJumpsThroughBothLevels(t *testing.T) {
	rule, err := strategy.NewThreshold(2, 30, 70)
	require.NoError(t, err)

	// RSI(2) goes 3.03 -> 88.28 at the 120 bar while long from 97.5.
	candles := createCandles(24*time.Hour, 100, 99, 98, 97, 97.5, 90, 120, 119, 118)

	report, err := New().Run(rule, candles)
	require.NoError(t, err)

	require.Len(t, report.Trades, 1)
	trade := report.Trades[0]
	assert.Equal(t, 97.5, trade.EntryPrice)
	assert.Equal(t, 120.0, trade.ExitPrice)
	assert.Equal(t, candles[6].Timestamp, trade.ExitTime)
	assert.Equal(t, ReasonSignal, trade.Reason)

	assert.Equal(t, 1, report.Result.TradeCount)
	assert.Equal(t, 23.08, report.Result.TotalReturnPct)
	assert.Equal(t, 100.0, report.Result.WinRatePct)
}

func TestRun_Errors(t *testing.T) {
	rule, err := strategy.NewCrossover(10, 50, strategy.AverageSMA)
	require.NoError(t, err)

	_, err = Run(nil, createCandles(time.Hour, repeat(100, 60)...))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Run(rule, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Run(rule, createCandles(time.Hour, repeat(100, 50)...))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Run(rule, createCandles(time.Hour, repeat(100, 51)...))
	assert.NoError(t, err)
}

func TestRun_EdgeInvariants(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i%5)
	}
	candles := createCandles(24*time.Hour, closes...)

	for seed := uint64(0); seed < 20; seed++ {
		report, err := New().Run(strategy.NewEdge(strategy.WithSeed(seed)), candles)
		require.NoError(t, err)

		res := report.Result
		assert.Equal(t, len(report.Trades), res.TradeCount)
		assert.GreaterOrEqual(t, res.WinRatePct, 0.0)
		assert.LessOrEqual(t, res.WinRatePct, 100.0)
		assert.GreaterOrEqual(t, res.MaxDrawdownPct, 0.0)

		for i, tr := range report.Trades {
			assert.False(t, tr.ExitTime.Before(tr.EntryTime))
			assert.False(t, tr.EntryTime.Before(candles[20].Timestamp))
			if i > 0 {
				assert.True(t, tr.EntryTime.After(report.Trades[i-1].ExitTime))
			}
			if tr.Reason == ReasonEnd {
				assert.Equal(t, len(report.Trades)-1, i)
				assert.Equal(t, candles[len(candles)-1].Timestamp, tr.ExitTime)
			}
		}
	}
}

func TestRun_EdgeSeedReproducible(t *testing.T) {
	candles := createCandles(time.Hour, repeat(100, 80)...)
	rule := strategy.NewEdge(strategy.WithSeed(11))

	a, err := New().Run(rule, candles)
	require.NoError(t, err)
	b, err := New().Run(rule, candles)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, stdDev(nil))
	assert.Equal(t, 0.0, stdDev([]float64{0.3}))
	assert.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}

func TestYearFraction(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.01, yearFraction(start, start))
	assert.InDelta(t, 1.0, yearFraction(start, start.Add(yearLength)), 1e-12)
}

func TestAnnualize(t *testing.T) {
	assert.Equal(t, 0.0, annualize(0, 0.5))
	assert.InDelta(t, 0.21, annualize(0.1, 0.5), 1e-12)
	assert.Equal(t, -1.0, annualize(-1, 1))
	assert.Equal(t, -1.0, annualize(-3, 1))
	assert.True(t, math.IsInf(annualize(1e6, 0.01), 1))
	assert.Equal(t, math.MaxFloat64, finite(math.Inf(1)))
	assert.Equal(t, -math.MaxFloat64, finite(math.Inf(-1)))
	assert.Equal(t, 1.5, finite(1.5))
}
