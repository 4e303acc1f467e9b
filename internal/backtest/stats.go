package backtest

import (
	"math"
	"time"

	"github.com/amirphl/strategy-lab/internal/indicator"
)

const (
	yearLength      = 365.25 * 24 * time.Hour
	minYearFraction = 0.01
)

// account is the equity bookkeeping of a run. Equity only moves when a
// trade closes.
type account struct {
	trades, wins int
	totalReturn  float64
	equity       []float64
	maxEquity    float64
	minEquity    float64
}

func newAccount() *account {
	return &account{
		equity:    []float64{InitialEquity},
		maxEquity: InitialEquity,
		minEquity: InitialEquity,
	}
}

func (a *account) record(r float64) {
	a.trades++
	if r > 0 {
		a.wins++
	}
	a.totalReturn += r

	next := a.equity[len(a.equity)-1] * (1 + r)
	a.equity = append(a.equity, next)
	a.maxEquity = math.Max(a.maxEquity, next)
	a.minEquity = math.Min(a.minEquity, next)
}

func (a *account) result(name string, start, end time.Time) Result {
	var winRate, drawdown float64
	if a.trades > 0 {
		winRate = float64(a.wins) / float64(a.trades)
	}
	if a.maxEquity > a.minEquity && a.maxEquity > 0 {
		drawdown = (a.maxEquity - a.minEquity) / a.maxEquity
	}

	annualized := annualize(a.totalReturn, yearFraction(start, end))

	var sharpe float64
	if sd := stdDev(a.tradeReturns()); sd != 0 {
		sharpe = annualized / sd
	}

	return Result{
		Strategy:            name,
		StartDate:           start,
		EndDate:             end,
		TotalReturnPct:      indicator.Round2(a.totalReturn * 100),
		AnnualizedReturnPct: indicator.Round2(finite(annualized * 100)),
		SharpeRatio:         indicator.Round2(finite(sharpe)),
		MaxDrawdownPct:      indicator.Round2(drawdown * 100),
		WinRatePct:          indicator.Round2(winRate * 100),
		TradeCount:          a.trades,
	}
}

// tradeReturns derives per-trade returns from consecutive equity points.
func (a *account) tradeReturns() []float64 {
	out := make([]float64, 0, len(a.equity)-1)
	for i := 1; i < len(a.equity); i++ {
		out = append(out, a.equity[i]/a.equity[i-1]-1)
	}
	return out
}

func yearFraction(start, end time.Time) float64 {
	return math.Max(float64(end.Sub(start))/float64(yearLength), minYearFraction)
}

// annualize compounds total over the year fraction. A total loss of 100% or
// more has no real root and reports -100%.
func annualize(total, years float64) float64 {
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, 1/years) - 1
}

// finite saturates infinities so results stay JSON encodable.
func finite(v float64) float64 {
	return math.Max(math.Min(v, math.MaxFloat64), -math.MaxFloat64)
}

// stdDev is the population standard deviation, 0 for an empty sample.
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}
