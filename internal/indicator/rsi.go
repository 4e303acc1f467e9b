package indicator

import (
	"math"

	"github.com/amirphl/strategy-lab/internal/candle"
)

// RSI computes the Relative Strength Index of closes with Wilder smoothing.
// The first value lands at index period, the first bar with period price
// changes behind it. A window without losses reads 100.
func RSI(candles []candle.Candle, period int) Series {
	return rounded(rsiOf(candle.Closes(candles), period))
}

func rsiOf(prices []float64, period int) Series {
	out := NewSeries(len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := wilder(gains, period, 1, len(prices))
	avgLoss := wilder(losses, period, 1, len(prices))
	for i := period; i < len(prices); i++ {
		out[i] = relativeStrength(avgGain[i], avgLoss[i])
	}
	return out
}

func relativeStrength(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR is the Average True Range with Wilder smoothing. Inputs shorter than
// period yield no values.
func ATR(candles []candle.Candle, period int) Series {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return rounded(wilder(tr, period, 0, len(candles)))
}
