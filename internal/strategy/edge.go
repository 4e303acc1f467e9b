package strategy

import (
	"math/rand/v2"

	"github.com/amirphl/strategy-lab/internal/candle"
	"github.com/amirphl/strategy-lab/internal/strategy/position"
	"github.com/amirphl/strategy-lab/internal/strategy/signal"
)

const (
	edgeWarmup     = 20
	edgeDownBelow  = 0.48 // a draw above this predicts up, giving a 52% up bias
	edgeTakeProfit = 1.05
	edgeStopLoss   = 0.97
)

// Edge simulates a model with a slight upward edge. Every evaluated bar it
// draws a predicted direction: an up call enters when flat, a down call
// exits. Open positions also exit past +5% or below -3%.
type Edge struct {
	seed   uint64
	seeded bool
}

type EdgeOption func(*Edge)

// WithSeed makes every run of the rule draw the same sequence.
func WithSeed(seed uint64) EdgeOption {
	return func(e *Edge) {
		e.seed = seed
		e.seeded = true
	}
}

func NewEdge(opts ...EdgeOption) *Edge {
	e := &Edge{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Edge) Name() string { return "ML-based Strategy (Simulation)" }

func (e *Edge) WarmupPeriod() int { return edgeWarmup }

func (e *Edge) Bind(candles []candle.Candle) Evaluator {
	seed1, seed2 := rand.Uint64(), rand.Uint64()
	if e.seeded {
		seed1, seed2 = e.seed, e.seed^0x9e3779b97f4a7c15
	}
	rng := rand.New(rand.NewPCG(seed1, seed2))

	return EvaluatorFunc(func(i int, pos position.State) signal.Signal {
		up := rng.Float64() > edgeDownBelow

		if !pos.InPosition {
			if up {
				return signal.Enter
			}
			return signal.Hold
		}

		ratio := candles[i].Close / pos.EntryPrice
		if !up || ratio > edgeTakeProfit || ratio < edgeStopLoss {
			return signal.Exit
		}
		return signal.Hold
	})
}
