package indicator

import (
	"math"

	"github.com/amirphl/strategy-lab/internal/candle"
)

// MACD returns the MACD line (fast EMA minus slow EMA), its signal line and
// the histogram between them.
func MACD(candles []candle.Candle, fast, slow, signal int) (line, signalLine, histogram Series) {
	n := len(candles)
	fastEMA := EMA(candles, fast)
	slowEMA := EMA(candles, slow)

	line = NewSeries(n)
	var defined []float64
	for i := range candles {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			continue
		}
		line[i] = Round2(fastEMA[i] - slowEMA[i])
		defined = append(defined, line[i])
	}

	// The signal EMA runs over the defined tail of the line only, then is
	// shifted right so it lines up with the candles again.
	signalLine = NewSeries(n)
	if signal > 0 && len(defined) > signal {
		sig := emaOf(defined, signal)
		offset := n - len(defined)
		for j, v := range sig {
			signalLine[offset+j] = Round2(v)
		}
	}

	histogram = NewSeries(n)
	for i := range candles {
		if math.IsNaN(line[i]) || math.IsNaN(signalLine[i]) {
			continue
		}
		histogram[i] = Round2(line[i] - signalLine[i])
	}
	return line, signalLine, histogram
}

// Stochastic computes the stochastic oscillator: %K is the close's position
// inside the periodK high/low range smoothed over smoothK bars, %D is the SMA
// of %K over periodD bars. A flat range reads 50.
func Stochastic(candles []candle.Candle, periodK, smoothK, periodD int) (k, d Series) {
	n := len(candles)
	if periodK <= 0 || smoothK <= 0 || periodD <= 0 || n < periodK {
		return NewSeries(n), NewSeries(n)
	}

	raw := NewSeries(n)
	for i := periodK - 1; i < n; i++ {
		lowest, highest := candles[i].Low, candles[i].High
		for _, c := range candles[i-periodK+1 : i] {
			lowest = math.Min(lowest, c.Low)
			highest = math.Max(highest, c.High)
		}
		if highest == lowest {
			raw[i] = 50
		} else {
			raw[i] = 100 * (candles[i].Close - lowest) / (highest - lowest)
		}
	}

	smoothedK := windowMean(raw, smoothK)
	return rounded(smoothedK), rounded(windowMean(smoothedK, periodD))
}

// windowMean averages each trailing window of values, leaving NaN wherever
// the window still contains an undefined value.
func windowMean(values Series, period int) Series {
	out := NewSeries(len(values))
	for i := period - 1; i < len(values); i++ {
		var sum float64
		for _, v := range values[i-period+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}
