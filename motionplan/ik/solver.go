// Package ik solves position-only inverse kinematics for the arm with a multi-start pattern search.
//
// The search is local coordinate descent over shoulder, elbow and wrist from a library of seed poses
// and a handful of base angles. It is not gradient descent and is not guaranteed to find the global
// optimum; a target it cannot reach comes back as the closest configuration found with a large
// Error rather than as an error.
package ik

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/robosim/armcore/kinematics"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/spatialmath"
)

// ErrInvalidTarget is returned for targets with NaN or infinite coordinates.
var ErrInvalidTarget = errors.New("ik target has non-finite coordinates")

// Result is the best configuration found for a target.
type Result struct {
	// Joints is clamped to the joint limits; WristRoll is always 0.
	Joints referenceframe.JointAngles `json:"joints"`
	// Error is the distance in meters from the achieved jaw position to the target. It excludes any
	// preference penalty.
	Error float64 `json:"error"`
	// Cost is Error plus any preference penalty, the value candidates were ranked by.
	Cost float64 `json:"cost"`
	// Position is the achieved jaw position.
	Position r3.Vector `json:"position"`
	// Seed names the seed the result was refined from.
	Seed string `json:"seed"`
	// Evaluations counts forward kinematics calls made by the solve.
	Evaluations int `json:"evaluations"`
}

// Solver runs the pattern search. It holds no per request state and is safe for concurrent use.
type Solver struct {
	kin    kinematics.Kinematics
	limits referenceframe.JointLimits
	seeds  SeedLibrary
	cfg    *Config
	logger logging.Logger
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithSeedLibrary replaces DefaultSeeds.
func WithSeedLibrary(seeds SeedLibrary) SolverOption {
	return func(s *Solver) { s.seeds = seeds }
}

// WithJointLimits replaces the default joint limits.
func WithJointLimits(limits referenceframe.JointLimits) SolverOption {
	return func(s *Solver) { s.limits = limits }
}

// WithConfig replaces the default search parameters. Unset fields keep their defaults.
func WithConfig(cfg *Config) SolverOption {
	return func(s *Solver) { s.cfg = cfg.withDefaults() }
}

// NewSolver creates a solver over the given kinematics.
func NewSolver(kin kinematics.Kinematics, logger logging.Logger, opts ...SolverOption) *Solver {
	s := &Solver{
		kin:    kin,
		limits: referenceframe.DefaultJointLimits(),
		seeds:  DefaultSeeds,
		cfg:    NewDefaultConfig(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefaultSolver creates a solver over the SO-101 chain.
func NewDefaultSolver(logger logging.Logger, opts ...SolverOption) *Solver {
	return NewSolver(kinematics.SO101(), logger, opts...)
}

// Limits returns the joint limits the solver clamps to.
func (s *Solver) Limits() referenceframe.JointLimits {
	return s.limits
}

// Solve searches for the configuration whose jaw position is closest to target. Context
// cancellation is checked between seeds.
func (s *Solver) Solve(ctx context.Context, target r3.Vector, opts Options) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "ik::Solve")
	defer span.End()

	if !finite(target) {
		return Result{}, ErrInvalidTarget
	}

	position := NewPositionMetric(target)
	cost := position
	if opts.PreferHorizontal {
		cost = CombineMetrics(position, NewHorizontalWristMetric())
	}
	run := &search{
		solver:   s,
		position: position,
		cost:     cost,
		penalty:  opts.PreferHorizontal,
		maxIter:  s.maxIterations(opts),
	}
	var fixedWrist *float64
	if opts.FixedWrist != nil {
		w := s.limits.ClampJoint(referenceframe.Wrist, *opts.FixedWrist)
		fixedWrist = &w
	}

	best := candidate{cost: math.Inf(1), err: math.Inf(1)}
	bases := s.baseCandidates(target, opts.FixedBase)
	seeds := s.seeds.Seeds()
search:
	for _, base := range bases {
		for _, seed := range seeds {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			start := s.limits.Clamp(seed.Joints(base))
			if fixedWrist != nil {
				start.Wrist = *fixedWrist
			}
			c := run.refine(start, fixedWrist != nil)
			c.seed = seed.Name
			if c.cost < best.cost {
				best = c
			}
			if s.cfg.SufficientCost > 0 && best.cost < s.cfg.SufficientCost {
				break search
			}
		}
	}

	joints := s.limits.Clamp(best.joints)
	joints.WristRoll = 0
	res := Result{
		Joints:      joints,
		Error:       math.Max(0, best.err),
		Cost:        best.cost,
		Position:    s.kin.Position(joints),
		Seed:        best.seed,
		Evaluations: run.evaluations,
	}
	s.logger.Debugw("ik solve finished",
		"target", target, "error", res.Error, "cost", res.Cost, "seed", res.Seed,
		"bases", len(bases), "evaluations", res.Evaluations)
	return res, nil
}

func (s *Solver) maxIterations(opts Options) int {
	switch {
	case opts.MaxIterations > 0:
		return opts.MaxIterations
	case opts.MaxIterations < 0:
		return 0
	default:
		return s.cfg.MaxIterations
	}
}

// baseCandidates returns the fixed base alone, or the nominal atan2(Z, X) bearing and its offsets,
// clamped and deduplicated.
func (s *Solver) baseCandidates(target r3.Vector, fixed *float64) []float64 {
	if fixed != nil {
		return []float64{s.limits.ClampJoint(referenceframe.Base, *fixed)}
	}
	nominal := s.limits.ClampJoint(referenceframe.Base, spatialmath.BaseAngleDeg(target))
	out := make([]float64, 0, len(s.cfg.BaseOffsets))
	seen := map[float64]bool{}
	for _, off := range s.cfg.BaseOffsets {
		b := s.limits.ClampJoint(referenceframe.Base, nominal+off)
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// NominalBase returns the clamped atan2(Z, X) base angle for a target in degrees.
func (s *Solver) NominalBase(target r3.Vector) float64 {
	return s.limits.ClampJoint(referenceframe.Base, spatialmath.BaseAngleDeg(target))
}

func finite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
