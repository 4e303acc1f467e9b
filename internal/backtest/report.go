package backtest

import (
	"github.com/rs/zerolog"
)

// maxLoggedTrades bounds the per-trade lines LogReport emits.
const maxLoggedTrades = 10

// LogReport writes the run summary at info level followed by the most
// recent trades at debug level.
func LogReport(l zerolog.Logger, r Report) {
	res := r.Result
	l.Info().
		Str("run_id", r.RunID).
		Str("strategy", res.Strategy).
		Time("start", res.StartDate).
		Time("end", res.EndDate).
		Int("trades", res.TradeCount).
		Float64("win_rate_pct", res.WinRatePct).
		Float64("total_return_pct", res.TotalReturnPct).
		Float64("annualized_return_pct", res.AnnualizedReturnPct).
		Float64("sharpe", res.SharpeRatio).
		Float64("max_drawdown_pct", res.MaxDrawdownPct).
		Msg("backtest finished")

	trades := r.Trades
	if skipped := len(trades) - maxLoggedTrades; skipped > 0 {
		l.Debug().Str("run_id", r.RunID).Int("skipped", skipped).Msg("older trades omitted")
		trades = trades[skipped:]
	}
	for _, t := range trades {
		l.Debug().
			Str("run_id", r.RunID).
			Time("entry_time", t.EntryTime).
			Float64("entry", t.EntryPrice).
			Time("exit_time", t.ExitTime).
			Float64("exit", t.ExitPrice).
			Float64("return", t.Return).
			Str("reason", t.Reason).
			Msg("trade")
	}
}
