package runner

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/strategy-lab/internal/backtest"
	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/db"
	"github.com/amirphl/strategy-lab/internal/metrics"
	"github.com/amirphl/strategy-lab/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	for i := range out {
		p := 100 + 10*math.Sin(float64(i)/9)
		out[i] = candle.Candle{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p,
			Volume:    5 + float64(i%7),
			Symbol:    "BTC-USDT",
			Timeframe: "1h",
		}
	}
	return out
}

func seed(v uint64) *uint64 { return &v }

func allStrategies() []strategy.Spec {
	return []strategy.Spec{
		{Kind: strategy.KindCrossover, Short: 5, Long: 20},
		{Kind: strategy.KindThreshold},
		{Kind: strategy.KindEdge, Seed: seed(1)},
	}
}

func TestRun_FromStorage(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	require.NoError(t, store.SaveCandles(ctx, createTestCandles(200)))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var logs bytes.Buffer
	r := New(store, WithMetrics(m), WithLogger(zerolog.New(&logs)))

	reports, err := r.Run(ctx, Request{
		Symbol:     "BTC-USDT",
		Timeframe:  "1h",
		From:       t0,
		To:         t0.Add(150 * time.Hour),
		Strategies: allStrategies(),
	})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, "SMA Crossover (5/20)", reports[0].Result.Strategy)
	assert.Equal(t, "RSI (14) Overbought/Oversold", reports[1].Result.Strategy)
	assert.Equal(t, "ML-based Strategy (Simulation)", reports[2].Result.Strategy)

	ids := map[string]bool{}
	for _, rep := range reports {
		assert.NotEmpty(t, rep.RunID)
		ids[rep.RunID] = true
		assert.Equal(t, t0, rep.Result.StartDate)
		assert.Equal(t, t0.Add(149*time.Hour), rep.Result.EndDate)
		assert.Equal(t, len(rep.Trades), rep.Result.TradeCount)
	}
	assert.Len(t, ids, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestsTotal.WithLabelValues("SMA Crossover (5/20)", metrics.OutcomeOK)))
	assert.Contains(t, logs.String(), "backtests finished")
	assert.Contains(t, logs.String(), reports[0].RunID)
}

func TestRunCandles_MatchesDirectBacktest(t *testing.T) {
	candles := createTestCandles(120)
	spec := strategy.Spec{Kind: strategy.KindCrossover, Short: 5, Long: 20}

	reports, err := New(nil).RunCandles(context.Background(), candles, Request{Strategies: []strategy.Spec{spec}})
	require.NoError(t, err)

	rule, err := strategy.New(spec)
	require.NoError(t, err)
	want, err := backtest.Run(rule, candles)
	require.NoError(t, err)

	assert.Equal(t, want, reports[0].Result)
}

func TestRunCandles_Errors(t *testing.T) {
	ctx := context.Background()
	r := New(nil, WithMetrics(metrics.New(prometheus.NewRegistry())))

	_, err := r.RunCandles(ctx, nil, Request{Strategies: allStrategies()})
	assert.ErrorIs(t, err, ErrNoCandles)

	bad := createTestCandles(30)
	bad[4].High = 0
	_, err = r.RunCandles(ctx, bad, Request{Strategies: allStrategies()})
	assert.ErrorContains(t, err, "index 4")

	_, err = r.RunCandles(ctx, createTestCandles(30), Request{Strategies: []strategy.Spec{{Kind: "martingale"}}})
	assert.ErrorIs(t, err, strategy.ErrInvalidSpec)

	_, err = r.RunCandles(ctx, createTestCandles(30), Request{Sampling: "tick", Strategies: allStrategies()})
	assert.ErrorIs(t, err, ErrBadSampling)

	// default crossover needs more than 50 bars
	_, err = r.RunCandles(ctx, createTestCandles(40), Request{Strategies: []strategy.Spec{{Kind: strategy.KindCrossover}}})
	assert.ErrorIs(t, err, backtest.ErrInsufficientData)

	_, err = New(nil).Run(ctx, Request{})
	assert.Error(t, err)
}

func TestRunCandles_VolumeSampling(t *testing.T) {
	// 300 bars collapse to 20, enough for an RSI(5) warm-up
	reports, err := New(nil).RunCandles(context.Background(), createTestCandles(300), Request{
		Sampling:   SamplingVolume,
		Strategies: []strategy.Spec{{Kind: strategy.KindThreshold, Period: 5}},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
}

func TestPrepare(t *testing.T) {
	candles := createTestCandles(48)

	out, err := Prepare(candles, SamplingVolume, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), candle.MaxVolumeBars)

	out, err = Prepare(candles, SamplingTime, "4h")
	require.NoError(t, err)
	assert.Len(t, out, 12)

	out, err = Prepare(candles, "", "")
	require.NoError(t, err)
	assert.Equal(t, candles, out)

	_, err = Prepare(candles, SamplingTime, "3h")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]backtest.Report{
		{Result: backtest.Result{Strategy: "a", TotalReturnPct: 10, MaxDrawdownPct: 4, TradeCount: 3}},
		{Result: backtest.Result{Strategy: "b", TotalReturnPct: -5, MaxDrawdownPct: 8, TradeCount: 2}},
		{Result: backtest.Result{Strategy: "c", TotalReturnPct: 0, TradeCount: 0}},
	})
	assert.Equal(t, Summary{
		Runs:              3,
		TotalTrades:       5,
		ProfitableRuns:    1,
		AvgReturnPct:      1.67,
		AvgMaxDrawdownPct: 4,
		Best:              "a",
		Worst:             "b",
	}, s)
}
