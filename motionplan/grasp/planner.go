package grasp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/robosim/armcore/examplestore"
	"github.com/robosim/armcore/kinematics"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/motionplan/bridge"
	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/spatialmath"
)

// The low X, high Z corner of the workspace where the arm folds onto itself.
const (
	deadZoneMaxX = 0.08
	deadZoneMinZ = 0.12
)

// Solver answers ik requests. *ik.Solver and BridgeSolver satisfy it.
type Solver interface {
	Solve(ctx context.Context, target r3.Vector, opts ik.Options) (ik.Result, error)
}

// ExampleStore looks up verified examples. *examplestore.MemoryStore satisfies it.
type ExampleStore interface {
	Nearest(objectType string, pos r3.Vector, maxDistance float64) (*examplestore.Example, bool)
}

// BridgeSolver sends solves through an async bridge and waits for them.
type BridgeSolver struct {
	bridge *bridge.Bridge
}

// NewBridgeSolver wraps b.
func NewBridgeSolver(b *bridge.Bridge) *BridgeSolver {
	return &BridgeSolver{bridge: b}
}

// Solve implements Solver.
func (s *BridgeSolver) Solve(ctx context.Context, target r3.Vector, opts ik.Options) (ik.Result, error) {
	return s.bridge.SolveSync(ctx, target, opts)
}

// defaultBridgeSolver resolves bridge.Default on every call so it follows bridge.Reset.
type defaultBridgeSolver struct{}

func (defaultBridgeSolver) Solve(ctx context.Context, target r3.Vector, opts ik.Options) (ik.Result, error) {
	return bridge.Default().SolveSync(ctx, target, opts)
}

// Planner produces grasp plans. It holds no per request state; concurrent Plan calls are safe when
// its Solver and ExampleStore are.
type Planner struct {
	solver  Solver
	kin     kinematics.Kinematics
	limits  referenceframe.JointLimits
	store   ExampleStore
	opts    *Options
	repairs []RepairStrategy
	clock   clock.Clock
	logger  logging.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithKinematics replaces the SO-101 chain used to evaluate derived poses.
func WithKinematics(kin kinematics.Kinematics) PlannerOption {
	return func(p *Planner) { p.kin = kin }
}

// WithJointLimits replaces the default joint limits.
func WithJointLimits(limits referenceframe.JointLimits) PlannerOption {
	return func(p *Planner) { p.limits = limits }
}

// WithExampleStore enables the verified example fallback.
func WithExampleStore(store ExampleStore) PlannerOption {
	return func(p *Planner) { p.store = store }
}

// WithOptions replaces the default parameters. Unset fields keep their defaults.
func WithOptions(opts *Options) PlannerOption {
	return func(p *Planner) { p.opts = opts.withDefaults() }
}

// WithRepairStrategies replaces the repair ladder. An empty ladder disables repairs.
func WithRepairStrategies(strategies []RepairStrategy) PlannerOption {
	return func(p *Planner) { p.repairs = strategies }
}

// WithClock replaces the clock used for plan timing.
func WithClock(clk clock.Clock) PlannerOption {
	return func(p *Planner) { p.clock = clk }
}

// NewPlanner creates a planner that solves through solver.
func NewPlanner(solver Solver, logger logging.Logger, opts ...PlannerOption) *Planner {
	p := &Planner{
		solver:  solver,
		kin:     kinematics.SO101(),
		limits:  referenceframe.DefaultJointLimits(),
		opts:    NewDefaultOptions(),
		repairs: DefaultRepairStrategies(),
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefaultPlanner creates a planner over the process wide ik bridge.
func NewDefaultPlanner(logger logging.Logger, opts ...PlannerOption) *Planner {
	return NewPlanner(defaultBridgeSolver{}, logger, opts...)
}

// Options returns the effective planner parameters.
func (p *Planner) Options() Options {
	return *p.opts
}

// planContext carries the per call state of one Plan.
type planContext struct {
	obj Object
	// aim is the true grasp point; every reported error is measured against it.
	aim r3.Vector
	// reach is aim pulled inside the rated envelope; solves are aimed at it.
	reach r3.Vector
	meta  *PlanMeta
}

// candidatePlan is the outcome of one attempt.
type candidatePlan struct {
	attempt  Attempt
	approach referenceframe.JointAngles
	grasp    referenceframe.JointAngles
	lift     referenceframe.JointAngles
	errors   PhaseErrors
	// derivedApproach is true when the approach came from offsetting the grasp pose.
	derivedApproach bool
}

// Plan computes the pick for obj. Targets the arm cannot reach still produce a complete plan with
// Warning set; the error return is reserved for invalid objects, solver transport failures and ctx
// cancellation.
func (p *Planner) Plan(ctx context.Context, obj Object) (*GraspPlan, error) {
	ctx, span := trace.StartSpan(ctx, "grasp::Plan")
	defer span.End()

	start := p.clock.Now()
	t, err := ParseObjectType(string(obj.Type))
	if err != nil {
		return nil, err
	}
	obj.Type = t
	if !finite(obj.Position) {
		return nil, errors.Errorf("object position %v has non-finite coordinates", obj.Position)
	}

	aim := obj.GraspPoint()
	reach, outside := aim, false
	if p.opts.MaxReach > 0 {
		reach, outside = spatialmath.ClampRadial(aim, p.opts.MaxReach)
	}
	pc := &planContext{obj: obj, aim: aim, reach: reach, meta: NewPlanMeta()}
	miss := aim.Sub(reach).Norm()

	initial := Attempt{Side: p.sideGrasp(obj, aim)}
	best, err := p.attempt(ctx, pc, initial)
	if err != nil {
		return nil, err
	}
	if best.errors.Max() > p.opts.RetryThreshold && len(p.repairs) > 0 {
		if miss > p.opts.RetryThreshold {
			p.logger.Debugw("skipping repairs for target outside the envelope", "object", obj, "miss", miss)
		} else {
			best, err = p.repair(ctx, pc, initial, best)
			if err != nil {
				return nil, err
			}
		}
	}

	plan := p.assemble(pc, best)
	if plan.MaxError() > p.opts.RetryThreshold {
		p.exampleFallback(pc, plan)
	}
	p.annotate(pc, plan, outside)
	plan.buildSteps(p.opts)

	pc.meta.Duration = p.clock.Since(start)
	plan.Meta = pc.meta
	if plan.Warning != "" {
		p.logger.Warnw("grasp plan degraded", "object", obj, "warning", plan.Warning, "source", plan.Source)
	}
	p.logger.Debugw("grasp plan ready",
		"object", obj, "source", plan.Source, "strategy", plan.Strategy, "wristRoll", plan.WristRoll,
		"approach", plan.Errors.Approach, "grasp", plan.Errors.Grasp, "lift", plan.Errors.Lift,
		"solves", pc.meta.Solves, "duration", pc.meta.Duration)
	return plan, nil
}

// sideGrasp applies the orientation policy: cylinders from the side, low cubes from the side when
// enabled, everything else from above.
func (p *Planner) sideGrasp(obj Object, aim r3.Vector) bool {
	switch obj.Type {
	case Cylinder:
		return true
	case Cube:
		return p.opts.LowCubeSideGrasp && aim.Y < p.opts.LowObjectHeight
	default:
		return false
	}
}

func (p *Planner) repair(ctx context.Context, pc *planContext, initial Attempt, best *candidatePlan) (*candidatePlan, error) {
	ctx, span := trace.StartSpan(ctx, "grasp::repair")
	defer span.End()
	defer p.timed(pc.meta, "repair")()

	p.logger.Debugw("running repair ladder", "object", pc.obj, "error", best.errors.Max())
	out, ran, err := runLadder(ctx, initial, best, p.repairs, p.opts.AcceptThreshold,
		func(ctx context.Context, a Attempt) (*candidatePlan, error) {
			return p.attempt(ctx, pc, a)
		})
	pc.meta.Repairs = ran
	return out, err
}

// attempt solves the three phases for one set of inputs.
func (p *Planner) attempt(ctx context.Context, pc *planContext, a Attempt) (*candidatePlan, error) {
	var base *float64
	if a.BaseOffset != nil {
		base = ik.Angle(p.nominalBase(pc.reach) + *a.BaseOffset)
	}
	aim := spatialmath.Raise(pc.aim, a.HeightDelta)
	solveAim := spatialmath.Raise(pc.reach, a.HeightDelta)

	g, err := p.solveGrasp(ctx, pc, a.Side, aim, solveAim, base)
	if err != nil {
		return nil, err
	}
	approach, approachErr, derived, err := p.approach(ctx, pc, a, aim, solveAim, g)
	if err != nil {
		return nil, err
	}
	lift, liftErr, err := p.lift(ctx, pc, aim, solveAim, g)
	if err != nil {
		return nil, err
	}
	c := &candidatePlan{
		attempt:         a,
		approach:        approach,
		grasp:           g.joints,
		lift:            lift,
		errors:          PhaseErrors{Approach: approachErr, Grasp: g.err, Lift: liftErr},
		derivedApproach: derived,
	}
	p.logger.Debugw("grasp attempt",
		"object", pc.obj, "strategy", a.Strategy, "side", a.Side,
		"approach", c.errors.Approach, "grasp", c.errors.Grasp, "lift", c.errors.Lift,
		"candidate", g.label, "derived_approach", derived,
		"approach_travel_deg", approach.Distance(g.joints), "lift_travel_deg", lift.Distance(g.joints))
	return c, nil
}

func (p *Planner) assemble(pc *planContext, c *candidatePlan) *GraspPlan {
	roll := rollFor(c.attempt.Side)
	withRoll := func(j referenceframe.JointAngles) referenceframe.JointAngles {
		j.WristRoll = roll
		return p.limits.Clamp(j)
	}
	return &GraspPlan{
		Object:          pc.obj,
		Approach:        withRoll(c.approach),
		Grasp:           withRoll(c.grasp),
		Lift:            withRoll(c.lift),
		WristRoll:       roll,
		Side:            c.attempt.Side,
		ApproachDerived: c.derivedApproach,
		GripperOpen:     GripperOpen,
		GripperClose:    GripperClose,
		Errors:          c.errors,
		Source:          SourceNumeric,
		Strategy:        c.attempt.Strategy,
	}
}

// exampleFallback replaces the poses of plan with the nearest verified example when that example
// was recorded with a low grasp error and beats the numeric result.
func (p *Planner) exampleFallback(pc *planContext, plan *GraspPlan) {
	if p.store == nil {
		return
	}
	defer p.timed(pc.meta, "exampleFallback")()

	ex, ok := p.store.Nearest(string(pc.obj.Type), pc.obj.Position, p.opts.MaxExampleDistance)
	if !ok {
		p.logger.Debugw("no verified example near target", "object", pc.obj)
		return
	}
	if ex.RecordedErrors.Grasp >= p.opts.ExampleMaxGraspError {
		p.logger.Debugw("nearest verified example has a high grasp error", "id", ex.ID, "error", ex.RecordedErrors.Grasp)
		return
	}
	errs := PhaseErrors(ex.RecordedErrors)
	if errs.Max() >= plan.MaxError() {
		return
	}
	approach, grasp, lift, ok := ex.Phases()
	if !ok {
		return
	}

	side := math.Abs(grasp.WristRoll) < (WristRollTopDown-WristRollSide)/2
	roll := rollFor(side)
	base := p.nominalBase(pc.reach)
	reaim := func(j referenceframe.JointAngles) referenceframe.JointAngles {
		j.Base = base
		j.WristRoll = roll
		j.Gripper = nil
		return p.limits.Clamp(j)
	}
	p.logger.Infow("using verified example", "id", ex.ID, "object", pc.obj, "numeric_error", plan.MaxError())
	plan.Approach, plan.Grasp, plan.Lift = reaim(approach), reaim(grasp), reaim(lift)
	plan.WristRoll = roll
	plan.Side = side
	plan.ApproachDerived = false
	plan.Errors = errs
	plan.Source = SourceExample
	plan.Strategy = ""
	plan.ExampleID = ex.ID
}

func (p *Planner) annotate(pc *planContext, plan *GraspPlan, outside bool) {
	maxErr := plan.MaxError()
	switch {
	case maxErr > p.opts.LikelyUnreachable:
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("target likely unreachable: max ik error %.1f cm", maxErr*100))
	case maxErr > p.opts.RetryThreshold:
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("grasp may miss: max ik error %.1f cm", maxErr*100))
	}
	if pc.aim.X < deadZoneMaxX && math.Abs(pc.aim.Z) > deadZoneMinZ {
		plan.Warnings = append(plan.Warnings, "target lies in the low X, high Z dead zone")
	}
	if outside {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("target is %.3f m from the base, beyond the rated reach of %.2f m",
				spatialmath.Radial(pc.aim), p.opts.MaxReach))
	}
	// Recorded example errors were measured on the executed sequence already.
	plan.ExecutedGraspError = plan.Errors.Grasp
	if plan.Source == SourceNumeric {
		plan.ExecutedGraspError = p.kin.Position(plan.Grasp).Sub(pc.aim).Norm()
	}
	if plan.ExecutedGraspError > p.opts.RetryThreshold && plan.Errors.Grasp <= p.opts.RetryThreshold {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("wrist roll %.0f moves the jaw %.1f cm from the target", plan.WristRoll, plan.ExecutedGraspError*100))
	}
	plan.NoSolution = maxErr > p.opts.RetryThreshold
	plan.Warning = strings.Join(plan.Warnings, "; ")
}

// solve issues one ik request and counts it.
func (p *Planner) solve(ctx context.Context, pc *planContext, target r3.Vector, opts ik.Options) (ik.Result, error) {
	pc.meta.Solves++
	res, err := p.solver.Solve(ctx, target, opts)
	if err != nil {
		return ik.Result{}, errors.Wrapf(err, "solving for %v", target)
	}
	res.Joints = p.limits.Clamp(res.Joints)
	return res, nil
}

func rollFor(side bool) float64 {
	if side {
		return WristRollSide
	}
	return WristRollTopDown
}

// executedPosition is the jaw position of j once the plan's wrist roll is applied. Solves run at
// roll 0, so this can differ from the solver's reported position.
func (p *Planner) executedPosition(j referenceframe.JointAngles, side bool) r3.Vector {
	j.WristRoll = rollFor(side)
	return p.kin.Position(p.limits.Clamp(j))
}

func (p *Planner) nominalBase(target r3.Vector) float64 {
	return p.limits.ClampJoint(referenceframe.Base, spatialmath.BaseAngleDeg(target))
}

// timed returns a func that records the time since its creation under name.
func (p *Planner) timed(meta *PlanMeta, name string) func() {
	start := p.clock.Now()
	return func() { meta.AddTiming(name, p.clock.Since(start)) }
}

func finite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
