// Package strategy
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

var ErrInvalidSpec = errors.New("invalid strategy spec")

// Rule is a per-bar trading policy. A Rule holds only its parameters and is
// safe to share; Bind produces the per-run state.
type Rule interface {
	Name() string      // label used in results
	WarmupPeriod() int // first bar index the engine evaluates
	Bind(candles []candle.Candle) Evaluator
}

// Evaluator decides on bar i given the position held before that bar.
type Evaluator interface {
	Evaluate(i int, pos position.State) signal.Signal
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(i int, pos position.State) signal.Signal

func (f EvaluatorFunc) Evaluate(i int, pos position.State) signal.Signal { return f(i, pos) }

type Kind string

const (
	KindCrossover Kind = "crossover"
	KindThreshold Kind = "threshold"
	KindEdge      Kind = "edge"
)

// Spec is the serializable description of a rule, shared by config files,
// the command line and the HTTP API.
type Spec struct {
	Kind    Kind    `json:"kind" yaml:"kind"`
	Short   int     `json:"short,omitempty" yaml:"short"`
	Long    int     `json:"long,omitempty" yaml:"long"`
	Average Average `json:"average,omitempty" yaml:"average"`
	Period  int     `json:"period,omitempty" yaml:"period"`
	Lower   float64 `json:"lower,omitempty" yaml:"lower"`
	Upper   float64 `json:"upper,omitempty" yaml:"upper"`
	Seed    *uint64 `json:"seed,omitempty" yaml:"seed"`
}

// New builds the rule a spec describes. Zero-valued fields take the
// defaults of the rule kind.
func New(spec Spec) (Rule, error) {
	switch Kind(strings.ToLower(string(spec.Kind))) {
	case KindCrossover:
		short, long := spec.Short, spec.Long
		if short == 0 {
			short = DefaultShortPeriod
		}
		if long == 0 {
			long = DefaultLongPeriod
		}
		rule, err := NewCrossover(short, long, spec.Average)
		if err != nil {
			return nil, err
		}
		return rule, nil
	case KindThreshold:
		period, lower, upper := spec.Period, spec.Lower, spec.Upper
		if period == 0 {
			period = DefaultRSIPeriod
		}
		if lower == 0 && upper == 0 {
			lower, upper = DefaultOversold, DefaultOverbought
		}
		rule, err := NewThreshold(period, lower, upper)
		if err != nil {
			return nil, err
		}
		return rule, nil
	case KindEdge:
		var opts []EdgeOption
		if spec.Seed != nil {
			opts = append(opts, WithSeed(*spec.Seed))
		}
		return NewEdge(opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, spec.Kind)
	}
}
