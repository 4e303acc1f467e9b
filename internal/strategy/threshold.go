package strategy

import (
	"fmt"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/indicator"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

const (
	DefaultRSIPeriod  = 14
	DefaultOversold   = 30.0
	DefaultOverbought = 70.0
)

// Threshold trades RSI level crossings. It enters when RSI rises through
// the lower level and exits when RSI rises through the upper level. Both
// triggers are upward crosses.
type Threshold struct {
	period       int
	lower, upper float64
}

func NewThreshold(period int, lower, upper float64) (*Threshold, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: rsi period must be positive, got %d", ErrInvalidSpec, period)
	}
	if lower < 0 || upper > 100 || lower >= upper {
		return nil, fmt.Errorf("%w: thresholds must satisfy 0 <= lower < upper <= 100 (lower=%v upper=%v)", ErrInvalidSpec, lower, upper)
	}
	return &Threshold{period: period, lower: lower, upper: upper}, nil
}

func (t *Threshold) Name() string {
	return fmt.Sprintf("RSI (%d) Overbought/Oversold", t.period)
}

func (t *Threshold) WarmupPeriod() int { return t.period + 1 }

func (t *Threshold) Bind(candles []candle.Candle) Evaluator {
	rsi := indicator.RSI(candles, t.period)

	return EvaluatorFunc(func(i int, pos position.State) signal.Signal {
		prev, curr := rsi.At(i-1), rsi.At(i)
		if prev.IsNone() || curr.IsNone() {
			return signal.Hold
		}

		p, c := prev.Unwrap(), curr.Unwrap()
		switch {
		case !pos.InPosition && p <= t.lower && c > t.lower:
			return signal.Enter
		// TODO: confirm whether the exit should be the downward cross back below upper.
		case pos.InPosition && p <= t.upper && c > t.upper:
			return signal.Exit
		default:
			return signal.Hold
		}
	})
}
