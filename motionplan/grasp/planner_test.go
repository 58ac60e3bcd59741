package grasp

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/robosim/armcore/examplestore"
	"github.com/robosim/armcore/kinematics"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/motionplan/bridge"
	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/motionplan/trajectory"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/spatialmath"
)

func newTestPlanner(t *testing.T, opts ...PlannerOption) *Planner {
	t.Helper()
	logger := logging.NewTestLogger(t)
	solver := ik.NewDefaultSolver(logger, ik.WithConfig(&ik.Config{SufficientCost: 0.001}))
	return NewPlanner(solver, logger, opts...)
}

func assertPlanWithinLimits(t *testing.T, plan *GraspPlan) {
	t.Helper()
	limits := referenceframe.DefaultJointLimits()
	for _, j := range []referenceframe.JointAngles{plan.Approach, plan.Grasp, plan.Lift} {
		test.That(t, limits.Check(j), test.ShouldBeNil)
	}
	for _, s := range plan.Steps {
		test.That(t, limits.Check(s.Joints), test.ShouldBeNil)
	}
}

func assertStepStructure(t *testing.T, plan *GraspPlan) {
	t.Helper()
	test.That(t, plan.Steps, test.ShouldHaveLength, 5)
	test.That(t, plan.Steps[0].Gripper, test.ShouldEqual, 100)
	test.That(t, plan.Steps[1].Gripper, test.ShouldEqual, 100)
	test.That(t, plan.Steps[2].GripperOnly, test.ShouldBeTrue)
	test.That(t, plan.Steps[2].Gripper, test.ShouldEqual, 0)
	test.That(t, plan.Steps[2].DurationMs, test.ShouldBeGreaterThanOrEqualTo, 800)
	test.That(t, plan.Steps[2].Joints.Floats(), test.ShouldResemble, plan.Steps[1].Joints.Floats())
	test.That(t, plan.Steps[3].Gripper, test.ShouldEqual, 0)
	test.That(t, plan.Steps[4].Gripper, test.ShouldEqual, 0)
	for _, s := range plan.Steps {
		test.That(t, s.Joints.WristRoll, test.ShouldEqual, plan.WristRoll)
	}
}

func TestPlanCube(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.16, Y: 0.02, Z: 0.01}, Type: Cube})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, plan.WristRoll, test.ShouldEqual, WristRollTopDown)
	test.That(t, plan.Side, test.ShouldBeFalse)
	test.That(t, plan.Errors.Grasp, test.ShouldBeLessThan, 0.03)
	test.That(t, plan.Source, test.ShouldEqual, SourceNumeric)
	assertStepStructure(t, plan)
	assertPlanWithinLimits(t, plan)
	test.That(t, plan.Meta.Solves, test.ShouldBeGreaterThan, 0)
	test.That(t, plan.Meta.Counters("solveGrasp").Calls(), test.ShouldBeGreaterThanOrEqualTo, 1)

	// The executed miss is measured with the top-down roll applied.
	aim := Object{Position: r3.Vector{X: 0.16, Y: 0.02, Z: 0.01}, Type: Cube}.GraspPoint()
	test.That(t, plan.ExecutedGraspError, test.ShouldAlmostEqual, kinematics.SO101().Position(plan.Grasp).Sub(aim).Norm())
	test.That(t, plan.Table(), test.ShouldContainSubstring, "at roll")

	res := trajectory.Validate(plan.Trajectory(0), trajectory.DefaultConstraints())
	test.That(t, res.HasError(trajectory.CodeGripperTiming), test.ShouldBeFalse)
	test.That(t, res.HasError(trajectory.CodeJointLimit), test.ShouldBeFalse)
}

func TestApproachClearsGrasp(t *testing.T) {
	if testing.Short() {
		t.Skip("plans over a hundred objects")
	}
	p := newTestPlanner(t)
	for _, typ := range []ObjectType{Cube, Cylinder, Ball} {
		for _, x := range []float64{0.12, 0.16, 0.20, 0.24} {
			for _, y := range []float64{0.01, 0.05, 0.10} {
				for _, z := range []float64{-0.08, 0, 0.08} {
					obj := Object{Position: r3.Vector{X: x, Y: y, Z: z}, Type: typ}
					plan, err := p.Plan(context.Background(), obj)
					test.That(t, err, test.ShouldBeNil)

					kin := kinematics.SO101()
					grasp := kin.Position(plan.Grasp)
					if !(plan.Side && plan.ApproachDerived) {
						rise := kin.Position(plan.Approach).Y - grasp.Y
						test.That(t, rise, test.ShouldBeGreaterThanOrEqualTo, verticalMinRise-1e-9)
					}
				}
			}
		}
	}
}

func TestRaise(t *testing.T) {
	p := newTestPlanner(t)
	grasp := referenceframe.JointAngles{Shoulder: 40, Elbow: 20, Wrist: -60}
	for _, side := range []bool{false, true} {
		graspPos := p.executedPosition(grasp, side)
		j, ok := p.raise(grasp, graspPos, side)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.executedPosition(j, side).Y-graspPos.Y, test.ShouldBeGreaterThanOrEqualTo, verticalMinRise)
		test.That(t, j.Shoulder, test.ShouldBeLessThan, grasp.Shoulder+1e-9)
		test.That(t, referenceframe.DefaultJointLimits().Check(j), test.ShouldBeNil)
	}
}

func TestPlanFarTarget(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.30, Y: 0.02, Z: 0.30}, Type: Cube})
	test.That(t, err, test.ShouldBeNil)

	assertStepStructure(t, plan)
	assertPlanWithinLimits(t, plan)
	test.That(t, plan.Errors.Grasp, test.ShouldBeGreaterThan, 0.04)
	test.That(t, plan.Warning, test.ShouldNotBeEmpty)
	test.That(t, plan.Warning, test.ShouldContainSubstring, "rated reach")
	test.That(t, plan.NoSolution, test.ShouldBeTrue)
	test.That(t, errors.Is(plan.Err(), ErrNoSolutionFound), test.ShouldBeTrue)
	// Repairs cannot pull the target back inside the envelope.
	test.That(t, plan.Meta.Repairs, test.ShouldBeEmpty)
}

func TestPlanUnclampedReach(t *testing.T) {
	p := newTestPlanner(t, WithOptions(&Options{MaxReach: -1}), WithRepairStrategies(nil))
	obj := Object{Position: r3.Vector{X: 0.30, Y: 0.02, Z: 0.30}, Type: Cube}
	plan, err := p.Plan(context.Background(), obj)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Warning, test.ShouldNotContainSubstring, "rated reach")
	assertPlanWithinLimits(t, plan)
}

func TestPlanCylinder(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.18, Y: 0.03, Z: 0}, Type: Cylinder, Scale: 0.01})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.WristRoll, test.ShouldEqual, WristRollSide)
	test.That(t, plan.Side, test.ShouldBeTrue)
	assertStepStructure(t, plan)
	assertPlanWithinLimits(t, plan)
}

func TestPlanInvalidObject(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.2}, Type: "pyramid"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pyramid")

	_, err = p.Plan(context.Background(), Object{Position: r3.Vector{X: math.NaN()}, Type: Ball})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOrientationPolicy(t *testing.T) {
	p := newTestPlanner(t)
	low := r3.Vector{X: 0.2, Y: 0.02}
	high := r3.Vector{X: 0.2, Y: 0.08}
	test.That(t, p.sideGrasp(Object{Type: Cylinder}, high), test.ShouldBeTrue)
	test.That(t, p.sideGrasp(Object{Type: Cube}, high), test.ShouldBeFalse)
	test.That(t, p.sideGrasp(Object{Type: Cube}, low), test.ShouldBeFalse)
	test.That(t, p.sideGrasp(Object{Type: Ball}, low), test.ShouldBeFalse)

	side := newTestPlanner(t, WithOptions(&Options{LowCubeSideGrasp: true}))
	test.That(t, side.sideGrasp(Object{Type: Cube}, low), test.ShouldBeTrue)
	test.That(t, side.sideGrasp(Object{Type: Cube}, high), test.ShouldBeFalse)
}

func TestSolveGraspFollowsOrientation(t *testing.T) {
	solver := &offsetSolver{}
	p := NewPlanner(solver, logging.NewTestLogger(t))
	obj := Object{Position: r3.Vector{X: 0.2, Y: 0.08}, Type: Cube}
	pc := &planContext{obj: obj, aim: obj.GraspPoint(), reach: obj.GraspPoint(), meta: NewPlanMeta()}

	_, err := p.solveGrasp(context.Background(), pc, false, pc.aim, pc.reach, nil)
	test.That(t, err, test.ShouldBeNil)
	topDown := solver.calls

	solver.calls = 0
	_, err = p.solveGrasp(context.Background(), pc, true, pc.aim, pc.reach, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solver.calls, test.ShouldEqual, topDown+len(defaultGraspHeightOffsets))
}

func TestTrajectoryTimestamps(t *testing.T) {
	plan := &GraspPlan{GripperOpen: GripperOpen, GripperClose: GripperClose}
	plan.buildSteps(NewDefaultOptions())
	frames := plan.Trajectory(500)
	test.That(t, frames, test.ShouldHaveLength, 5)
	want := []float64{1700, 2500, 3300, 3600, 4600}
	for i, f := range frames {
		test.That(t, f.TimestampMs, test.ShouldEqual, want[i])
	}
	test.That(t, frames[2].GripperOnly, test.ShouldBeTrue)
	test.That(t, frames[2].Joints, test.ShouldResemble, map[referenceframe.JointName]float64{referenceframe.Gripper: 0})
	test.That(t, frames[2].DurationMs, test.ShouldEqual, 800)
	test.That(t, frames[0].Joints[referenceframe.Gripper], test.ShouldEqual, 100)
	test.That(t, plan.Table(), test.ShouldContainSubstring, "close (gripper)")
}

// offsetSolver answers every request 10 cm away from its target.
type offsetSolver struct {
	calls int
}

func (s *offsetSolver) Solve(_ context.Context, target r3.Vector, _ ik.Options) (ik.Result, error) {
	s.calls++
	pos := target.Add(r3.Vector{X: 0.1})
	return ik.Result{
		Joints:   referenceframe.JointAngles{Shoulder: 10, Elbow: 10, Wrist: -10},
		Error:    0.1,
		Cost:     0.1,
		Position: pos,
	}, nil
}

func verifiedStore(t *testing.T, pos r3.Vector, graspErr float64) (*examplestore.MemoryStore, *examplestore.Example) {
	t.Helper()
	store := examplestore.NewMemoryStore()
	open, closed := referenceframe.GripperPercent(100), referenceframe.GripperPercent(0)
	ex, err := store.Submit(examplestore.Submission{
		ObjectType:     "cube",
		ObjectPosition: pos,
		JointSequence: []examplestore.SequenceStep{
			{JointAngles: referenceframe.JointAngles{Base: 40, Shoulder: -30, Elbow: 20, Wrist: -80, WristRoll: 90, Gripper: open}},
			{JointAngles: referenceframe.JointAngles{Base: 40, Shoulder: -5, Elbow: 23, Wrist: -94, WristRoll: 90, Gripper: open}},
			{JointAngles: referenceframe.JointAngles{Gripper: closed}, GripperOnly: true},
			{JointAngles: referenceframe.JointAngles{Base: 40, Shoulder: -40, Elbow: 10, Wrist: -70, WristRoll: 90, Gripper: closed}},
		},
		RecordedErrors: examplestore.RecordedErrors{Approach: 0.006, Grasp: graspErr, Lift: 0.008},
	})
	test.That(t, err, test.ShouldBeNil)
	return store, ex
}

func TestExampleFallback(t *testing.T) {
	logger := logging.NewTestLogger(t)
	target := r3.Vector{X: 0.18, Y: 0.02, Z: 0.03}
	store, ex := verifiedStore(t, r3.Vector{X: 0.19, Y: 0.02, Z: 0.03}, 0.004)
	solver := &offsetSolver{}
	p := NewPlanner(solver, logger, WithExampleStore(store))

	plan, err := p.Plan(context.Background(), Object{Position: target, Type: Cube})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Source, test.ShouldEqual, SourceExample)
	test.That(t, plan.ExampleID, test.ShouldEqual, ex.ID)
	test.That(t, plan.Errors, test.ShouldResemble, PhaseErrors{Approach: 0.006, Grasp: 0.004, Lift: 0.008})
	test.That(t, plan.ExecutedGraspError, test.ShouldEqual, 0.004)
	test.That(t, plan.Warning, test.ShouldBeEmpty)
	test.That(t, plan.NoSolution, test.ShouldBeFalse)

	// Re-aimed at the target's bearing, not the recorded one.
	bearing := spatialmath.BaseAngleDeg(target)
	test.That(t, plan.Grasp.Base, test.ShouldAlmostEqual, bearing)
	test.That(t, plan.Approach.Base, test.ShouldAlmostEqual, bearing)
	test.That(t, plan.Lift.Base, test.ShouldAlmostEqual, bearing)
	test.That(t, plan.Grasp.Wrist, test.ShouldEqual, -94)
	test.That(t, plan.WristRoll, test.ShouldEqual, WristRollTopDown)
	assertStepStructure(t, plan)
	assertPlanWithinLimits(t, plan)

	// The whole repair ladder ran before falling back.
	test.That(t, plan.Meta.Repairs, test.ShouldHaveLength, len(DefaultRepairStrategies()))
	test.That(t, plan.Meta.Repairs[0], test.ShouldEqual, "base+5")
	test.That(t, solver.calls, test.ShouldEqual, plan.Meta.Solves)
}

func TestExampleFallbackRejectsPoorExample(t *testing.T) {
	logger := logging.NewTestLogger(t)
	target := r3.Vector{X: 0.18, Y: 0.02, Z: 0.03}
	store, _ := verifiedStore(t, target, 0.03)
	p := NewPlanner(&offsetSolver{}, logger, WithExampleStore(store), WithRepairStrategies(nil))

	plan, err := p.Plan(context.Background(), Object{Position: target, Type: Cube})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Source, test.ShouldEqual, SourceNumeric)
	test.That(t, plan.MaxError(), test.ShouldBeGreaterThan, 0.06)
	test.That(t, plan.Warning, test.ShouldContainSubstring, "likely unreachable")
	test.That(t, plan.Meta.Repairs, test.ShouldBeEmpty)
	assertStepStructure(t, plan)
}

func TestDeadZoneWarning(t *testing.T) {
	p := NewPlanner(&offsetSolver{}, logging.NewTestLogger(t), WithRepairStrategies(nil))
	plan, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.05, Y: 0.05, Z: 0.15}, Type: Ball})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Warning, test.ShouldContainSubstring, "dead zone")
}

func TestTransportErrorPropagates(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b, err := bridge.New(&offsetSolver{}, logger)
	test.That(t, err, test.ShouldBeNil)
	b.Terminate()

	p := NewPlanner(NewBridgeSolver(b), logger)
	_, err = p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.2, Y: 0.05}, Type: Cube})
	test.That(t, errors.Is(err, bridge.ErrTerminated), test.ShouldBeTrue)
}

func TestPlanThroughBridge(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b, err := bridge.New(&offsetSolver{}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer b.Terminate()

	p := NewPlanner(NewBridgeSolver(b), logger, WithRepairStrategies(nil))
	plan, err := p.Plan(context.Background(), Object{Position: r3.Vector{X: 0.2, Y: 0.05}, Type: Ball})
	test.That(t, err, test.ShouldBeNil)
	assertStepStructure(t, plan)
	test.That(t, b.Started(), test.ShouldBeTrue)
	test.That(t, b.Pending(), test.ShouldEqual, 0)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPlanner(t)
	_, err := p.Plan(ctx, Object{Position: r3.Vector{X: 0.2, Y: 0.05}, Type: Cube})
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
