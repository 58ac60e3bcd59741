package grasp

import (
	"context"
	"fmt"
)

// Attempt is one set of inputs to the grasp, approach and lift solves.
type Attempt struct {
	// Side selects a horizontal finger closure.
	Side bool
	// BaseOffset pins the base at the nominal bearing plus this many degrees. Nil lets the solver
	// search around the bearing.
	BaseOffset *float64
	// HeightDelta shifts the grasp aim point up, in meters.
	HeightDelta float64
	// Strategy names the repair strategy that produced the attempt.
	Strategy string
}

// RepairStrategy derives a new attempt from the first one.
type RepairStrategy struct {
	Name   string
	Adjust func(initial Attempt) Attempt
}

func baseJitter(deg float64) RepairStrategy {
	return RepairStrategy{
		Name: fmt.Sprintf("base%+g", deg),
		Adjust: func(a Attempt) Attempt {
			off := deg
			a.BaseOffset = &off
			return a
		},
	}
}

func heightJitter(dy float64) RepairStrategy {
	return RepairStrategy{
		Name: fmt.Sprintf("height%+gcm", dy*100),
		Adjust: func(a Attempt) Attempt {
			a.HeightDelta += dy
			return a
		},
	}
}

// ToggleOrientation flips between side and top-down closure.
var ToggleOrientation = RepairStrategy{
	Name: "toggle_orientation",
	Adjust: func(a Attempt) Attempt {
		a.Side = !a.Side
		return a
	},
}

// DefaultRepairStrategies returns the repair ladder in the order it runs: base jitter, then grasp
// height jitter, then the orientation toggle.
func DefaultRepairStrategies() []RepairStrategy {
	return []RepairStrategy{
		baseJitter(5), baseJitter(-5), baseJitter(10), baseJitter(-10),
		heightJitter(0.01), heightJitter(-0.01), heightJitter(0.02), heightJitter(-0.02),
		ToggleOrientation,
	}
}

// attemptFunc runs one attempt and returns its poses.
type attemptFunc func(ctx context.Context, a Attempt) (*candidatePlan, error)

// runLadder tries each strategy in order until one yields a plan whose max error is below accept.
// It returns the best plan seen, initial included, and the names of the strategies that ran.
func runLadder(
	ctx context.Context,
	initialAttempt Attempt,
	initial *candidatePlan,
	strategies []RepairStrategy,
	accept float64,
	attempt attemptFunc,
) (*candidatePlan, []string, error) {
	best := initial
	ran := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return best, ran, err
		}
		a := s.Adjust(initialAttempt)
		a.Strategy = s.Name
		ran = append(ran, s.Name)
		c, err := attempt(ctx, a)
		if err != nil {
			return best, ran, err
		}
		if best == nil || c.errors.Max() < best.errors.Max() {
			best = c
		}
		if c.errors.Max() < accept {
			break
		}
	}
	return best, ran, nil
}
