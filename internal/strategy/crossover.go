package strategy

import (
	"fmt"
	"strings"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/indicator"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

const (
	DefaultShortPeriod = 10
	DefaultLongPeriod  = 50
)

// Average selects the moving average a crossover compares.
type Average string

const (
	AverageSMA Average = "sma"
	AverageEMA Average = "ema"
)

// Crossover enters when the short average crosses above the long one and
// exits on the cross back below.
type Crossover struct {
	short, long int
	average     Average
}

// NewCrossover validates the periods and defaults the average to SMA.
func NewCrossover(short, long int, average Average) (*Crossover, error) {
	if short <= 0 || long <= 0 {
		return nil, fmt.Errorf("%w: crossover periods must be positive (short=%d long=%d)", ErrInvalidSpec, short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short period %d must be below long period %d", ErrInvalidSpec, short, long)
	}

	switch Average(strings.ToLower(string(average))) {
	case "", AverageSMA:
		average = AverageSMA
	case AverageEMA:
		average = AverageEMA
	default:
		return nil, fmt.Errorf("%w: unknown moving average %q", ErrInvalidSpec, average)
	}

	return &Crossover{short: short, long: long, average: average}, nil
}

func (c *Crossover) Name() string {
	return fmt.Sprintf("%s Crossover (%d/%d)", strings.ToUpper(string(c.average)), c.short, c.long)
}

func (c *Crossover) WarmupPeriod() int { return c.long }

func (c *Crossover) Bind(candles []candle.Candle) Evaluator {
	ma := indicator.SMA
	if c.average == AverageEMA {
		ma = indicator.EMA
	}
	short, long := ma(candles, c.short), ma(candles, c.long)

	return EvaluatorFunc(func(i int, pos position.State) signal.Signal {
		prevShort, prevLong := short.At(i-1), long.At(i-1)
		currShort, currLong := short.At(i), long.At(i)
		if prevShort.IsNone() || prevLong.IsNone() || currShort.IsNone() || currLong.IsNone() {
			return signal.Hold
		}

		ps, pl := prevShort.Unwrap(), prevLong.Unwrap()
		cs, cl := currShort.Unwrap(), currLong.Unwrap()
		switch {
		case !pos.InPosition && ps <= pl && cs > cl:
			return signal.Enter
		case pos.InPosition && ps >= pl && cs < cl:
			return signal.Exit
		default:
			return signal.Hold
		}
	})
}
