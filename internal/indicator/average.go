package indicator

import (
	"math"

	"github.com/amirphl/strategy-lab/internal/candle"
)

// SMA is the simple moving average of closes over a trailing window.
func SMA(candles []candle.Candle, period int) Series {
	return rounded(smaOf(candle.Closes(candles), period))
}

// EMA is the exponential moving average of closes, seeded with the SMA of
// the first period closes. Inputs shorter than period yield no values.
func EMA(candles []candle.Candle, period int) Series {
	return rounded(emaOf(candle.Closes(candles), period))
}

func smaOf(values []float64, period int) Series {
	out := NewSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	for i := period - 1; i < len(values); i++ {
		var sum float64
		for _, v := range values[i-period+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

func emaOf(values []float64, period int) Series {
	out := NewSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out[period-1] = ema

	k := 2 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*k + ema
		out[i] = ema
	}
	return out
}

// wilder applies Wilder smoothing to values, seeding with the mean of the
// first period entries at index offset+period-1.
func wilder(values []float64, period, offset, n int) Series {
	out := NewSeries(n)
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	avg := sum / float64(period)
	out[offset+period-1] = avg

	for i := period; i < len(values); i++ {
		avg = (avg*float64(period-1) + values[i]) / float64(period)
		out[offset+i] = avg
	}
	return out
}

// BollingerBands returns the SMA middle band and the bands mult population
// standard deviations above and below it.
func BollingerBands(candles []candle.Candle, period int, mult float64) (upper, middle, lower Series) {
	n := len(candles)
	middle = SMA(candles, period)
	upper, lower = NewSeries(n), NewSeries(n)

	for i := range candles {
		if math.IsNaN(middle[i]) {
			continue
		}
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := candles[j].Close - middle[i]
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(period))
		upper[i] = Round2(middle[i] + mult*sd)
		lower[i] = Round2(middle[i] - mult*sd)
	}
	return upper, middle, lower
}
