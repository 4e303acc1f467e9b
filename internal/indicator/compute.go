// Package indicator computes technical indicators over candle sequences.
// Every output Series has the same length as its input and is index-aligned
// with it.
package indicator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/strategy-lab/internal/candle"
)

var ErrInvalidParams = errors.New("invalid indicator parameters")

type Kind string

const (
	KindSMA        Kind = "sma"
	KindEMA        Kind = "ema"
	KindRSI        Kind = "rsi"
	KindMACD       Kind = "macd"
	KindBollinger  Kind = "bollinger"
	KindATR        Kind = "atr"
	KindStochastic Kind = "stochastic"
)

// Output line names.
const (
	LineValue     = "value"
	LineMACD      = "macd"
	LineSignal    = "signal"
	LineHistogram = "histogram"
	LineUpper     = "upper"
	LineMiddle    = "middle"
	LineLower     = "lower"
	LineK         = "k"
	LineD         = "d"
)

// Kinds lists every supported indicator.
func Kinds() []Kind {
	return []Kind{KindSMA, KindEMA, KindRSI, KindMACD, KindBollinger, KindATR, KindStochastic}
}

// ParseKind resolves a case-insensitive indicator name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown indicator %q", ErrInvalidParams, s)
}

// Params holds the tunables of every indicator. Zero values select the
// defaults for the requested kind.
type Params struct {
	Period  int     `json:"period,omitempty" yaml:"period"`
	Fast    int     `json:"fast,omitempty" yaml:"fast"`
	Slow    int     `json:"slow,omitempty" yaml:"slow"`
	Signal  int     `json:"signal,omitempty" yaml:"signal"`
	StdDev  float64 `json:"std_dev,omitempty" yaml:"std_dev"`
	SmoothK int     `json:"smooth_k,omitempty" yaml:"smooth_k"`
	PeriodD int     `json:"period_d,omitempty" yaml:"period_d"`
}

// WithDefaults fills unset parameters for kind.
func (p Params) WithDefaults(kind Kind) Params {
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	switch kind {
	case KindSMA, KindEMA, KindBollinger:
		setInt(&p.Period, 20)
		if kind == KindBollinger && p.StdDev == 0 {
			p.StdDev = 2
		}
	case KindRSI, KindATR, KindStochastic:
		setInt(&p.Period, 14)
		if kind == KindStochastic {
			setInt(&p.SmoothK, 1)
			setInt(&p.PeriodD, 3)
		}
	case KindMACD:
		setInt(&p.Fast, 12)
		setInt(&p.Slow, 26)
		setInt(&p.Signal, 9)
	}
	return p
}

func (p Params) validate(kind Kind) error {
	switch kind {
	case KindMACD:
		if p.Fast < 0 || p.Slow < 0 || p.Signal < 0 {
			return fmt.Errorf("%w: macd periods must be positive (fast=%d slow=%d signal=%d)", ErrInvalidParams, p.Fast, p.Slow, p.Signal)
		}
	case KindStochastic:
		if p.Period < 0 || p.SmoothK < 0 || p.PeriodD < 0 {
			return fmt.Errorf("%w: stochastic periods must be positive", ErrInvalidParams)
		}
	default:
		if p.Period < 0 {
			return fmt.Errorf("%w: period must be positive, got %d", ErrInvalidParams, p.Period)
		}
	}
	if p.StdDev < 0 {
		return fmt.Errorf("%w: std_dev must not be negative, got %v", ErrInvalidParams, p.StdDev)
	}
	return nil
}

// Output maps line names to their series.
type Output map[string]Series

// Compute runs one indicator by kind. Short inputs are not an error; their
// lines simply hold no defined values.
func Compute(kind Kind, candles []candle.Candle, params Params) (Output, error) {
	if err := params.validate(kind); err != nil {
		return nil, err
	}
	p := params.WithDefaults(kind)

	switch kind {
	case KindSMA:
		return Output{LineValue: SMA(candles, p.Period)}, nil
	case KindEMA:
		return Output{LineValue: EMA(candles, p.Period)}, nil
	case KindRSI:
		return Output{LineValue: RSI(candles, p.Period)}, nil
	case KindATR:
		return Output{LineValue: ATR(candles, p.Period)}, nil
	case KindMACD:
		line, signal, hist := MACD(candles, p.Fast, p.Slow, p.Signal)
		return Output{LineMACD: line, LineSignal: signal, LineHistogram: hist}, nil
	case KindBollinger:
		upper, middle, lower := BollingerBands(candles, p.Period, p.StdDev)
		return Output{LineUpper: upper, LineMiddle: middle, LineLower: lower}, nil
	case KindStochastic:
		k, d := Stochastic(candles, p.Period, p.SmoothK, p.PeriodD)
		return Output{LineK: k, LineD: d}, nil
	default:
		return nil, fmt.Errorf("%w: unknown indicator %q", ErrInvalidParams, kind)
	}
}
