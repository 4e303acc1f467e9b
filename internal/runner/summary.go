package runner

import (
	"github.com/amirphl/strategy-lab/internal/backtest"
	"github.com/amirphl/strategy-lab/internal/indicator"
)

// Summary aggregates the results of a batch of runs.
type Summary struct {
	Runs              int     `json:"runs"`
	TotalTrades       int     `json:"total_trades"`
	ProfitableRuns    int     `json:"profitable_runs"`
	AvgReturnPct      float64 `json:"avg_return_pct"`
	AvgMaxDrawdownPct float64 `json:"avg_max_drawdown_pct"`
	Best              string  `json:"best,omitempty"`
	Worst             string  `json:"worst,omitempty"`
}

func Summarize(reports []backtest.Report) Summary {
	s := Summary{Runs: len(reports)}
	if len(reports) == 0 {
		return s
	}

	var totalReturn, totalDrawdown float64
	best, worst := reports[0].Result, reports[0].Result
	for _, r := range reports {
		res := r.Result
		s.TotalTrades += res.TradeCount
		totalReturn += res.TotalReturnPct
		totalDrawdown += res.MaxDrawdownPct
		if res.TotalReturnPct > 0 {
			s.ProfitableRuns++
		}
		if res.TotalReturnPct > best.TotalReturnPct {
			best = res
		}
		if res.TotalReturnPct < worst.TotalReturnPct {
			worst = res
		}
	}

	n := float64(len(reports))
	s.AvgReturnPct = indicator.Round2(totalReturn / n)
	s.AvgMaxDrawdownPct = indicator.Round2(totalDrawdown / n)
	s.Best, s.Worst = best.Strategy, worst.Strategy
	return s
}
