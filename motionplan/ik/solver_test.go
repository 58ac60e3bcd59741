package ik

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/robosim/armcore/kinematics"
	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/spatialmath"
)

func assertWithinLimits(t *testing.T, j referenceframe.JointAngles) {
	t.Helper()
	test.That(t, referenceframe.DefaultJointLimits().Check(j), test.ShouldBeNil)
}

func TestSolveReachableTarget(t *testing.T) {
	logger := logging.NewTestLogger(t)
	solver := NewDefaultSolver(logger)

	// A target produced by a known configuration is reachable by construction.
	known := referenceframe.JointAngles{Base: 5, Shoulder: 40, Elbow: 0, Wrist: -50}
	target := kinematics.SO101().Position(known)

	// With the generating base pinned the remaining joints can close the gap exactly.
	res, err := solver.Solve(context.Background(), target, Options{FixedBase: Angle(known.Base)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Error, test.ShouldBeLessThan, 0.002)
	test.That(t, res.Joints.Base, test.ShouldEqual, known.Base)
	test.That(t, res.Error, test.ShouldBeGreaterThanOrEqualTo, 0)
	test.That(t, res.Cost, test.ShouldAlmostEqual, res.Error)
	test.That(t, res.Joints.WristRoll, test.ShouldEqual, 0)
	test.That(t, res.Position.Sub(target).Norm(), test.ShouldAlmostEqual, res.Error, 1e-9)
	test.That(t, res.Seed, test.ShouldNotBeEmpty)
	test.That(t, res.Evaluations, test.ShouldBeGreaterThan, 0)
	assertWithinLimits(t, res.Joints)

	// A free base is only searched at discrete offsets, which leaves a small lateral residual.
	free, err := solver.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, free.Error, test.ShouldBeLessThan, 0.005)
	assertWithinLimits(t, free.Joints)
}

func TestSolveWorkspaceGrid(t *testing.T) {
	if testing.Short() {
		t.Skip("grid sweep runs hundreds of solves")
	}
	solver := NewDefaultSolver(logging.NewTestLogger(t))

	total, good := 0, 0
	for _, reach := range []float64{0.10, 0.16, 0.22, 0.28} {
		for _, height := range []float64{0, 0.07, 0.14, 0.21, 0.28, 0.35} {
			for _, bearing := range []float64{0, 30} {
				rad := bearing * math.Pi / 180
				target := r3.Vector{X: reach * math.Cos(rad), Y: height, Z: reach * math.Sin(rad)}
				res, err := solver.Solve(context.Background(), target, Options{})
				test.That(t, err, test.ShouldBeNil)
				assertWithinLimits(t, res.Joints)
				total++
				if res.Error < 0.03 {
					good++
				}
			}
		}
	}
	test.That(t, float64(good)/float64(total), test.ShouldBeGreaterThanOrEqualTo, 0.8)
}

func TestUnreachableTargetIsNotAnError(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	res, err := solver.Solve(context.Background(), r3.Vector{X: 2, Y: 2, Z: 0}, Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Error, test.ShouldBeGreaterThan, 1)
	assertWithinLimits(t, res.Joints)
}

func TestPreferHorizontal(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	target := r3.Vector{X: 0.25, Y: 0.10, Z: 0}

	plain, err := solver.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	horizontal, err := solver.Solve(context.Background(), target, Options{PreferHorizontal: true})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, math.Abs(horizontal.Joints.Wrist), test.ShouldBeLessThan, math.Abs(plain.Joints.Wrist))
	test.That(t, math.Abs(horizontal.Joints.Wrist), test.ShouldBeLessThan, HorizontalHardLimit)

	// The reported error is position only; the penalty shows up in Cost.
	test.That(t, horizontal.Cost-horizontal.Error, test.ShouldAlmostEqual, HorizontalPenalty(horizontal.Joints.Wrist), 1e-9)
	test.That(t, horizontal.Position.Sub(target).Norm(), test.ShouldAlmostEqual, horizontal.Error, 1e-9)
	assertWithinLimits(t, horizontal.Joints)
}

func TestFixedBaseAndWrist(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	target := r3.Vector{X: 0.18, Y: 0.05, Z: 0.02}

	res, err := solver.Solve(context.Background(), target, Options{FixedBase: Angle(7)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Joints.Base, test.ShouldEqual, 7)

	res, err = solver.Solve(context.Background(), target, Options{FixedBase: Angle(400)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Joints.Base, test.ShouldEqual, 110)

	res, err = solver.Solve(context.Background(), target, Options{FixedWrist: Angle(-45)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Joints.Wrist, test.ShouldEqual, -45)
	assertWithinLimits(t, res.Joints)

	res, err = solver.Solve(context.Background(), target, Options{FixedWrist: Angle(-200)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Joints.Wrist, test.ShouldEqual, -95)
}

func TestBaseCandidates(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))

	bases := solver.baseCandidates(r3.Vector{X: 1, Z: 1}, nil)
	expected := []float64{45, 48, 42, 51, 39, 54, 36, 57, 33}
	test.That(t, bases, test.ShouldHaveLength, len(expected))
	for i, b := range bases {
		test.That(t, b, test.ShouldAlmostEqual, expected[i])
	}

	// Near the limit the clamped offsets collapse.
	bases = solver.baseCandidates(r3.Vector{X: -1, Z: 0.01}, nil)
	test.That(t, len(bases), test.ShouldBeLessThan, 9)
	for _, b := range bases {
		test.That(t, b, test.ShouldBeGreaterThanOrEqualTo, -110)
		test.That(t, b, test.ShouldBeLessThanOrEqualTo, 110)
	}

	test.That(t, solver.baseCandidates(r3.Vector{X: 1}, Angle(-20)), test.ShouldResemble, []float64{-20})
	test.That(t, solver.NominalBase(spatialmath.NewVec3(0, 0, 1)), test.ShouldAlmostEqual, 90)
}

func TestMaxIterationsIsHardCap(t *testing.T) {
	seeds := StaticSeedLibrary{DefaultSeeds[0]}
	solver := NewDefaultSolver(logging.NewTestLogger(t), WithSeedLibrary(seeds))
	target := r3.Vector{X: 0.2, Y: 0.1, Z: 0}
	fixed := Angle(0)

	capped, err := solver.Solve(context.Background(), target, Options{FixedBase: fixed, MaxIterations: 1})
	test.That(t, err, test.ShouldBeNil)
	// One evaluation for the seed, at most six for one iteration over three joints.
	test.That(t, capped.Evaluations, test.ShouldBeLessThanOrEqualTo, 7)

	uncapped, err := solver.Solve(context.Background(), target, Options{FixedBase: fixed, MaxIterations: -1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, uncapped.Evaluations, test.ShouldBeGreaterThan, capped.Evaluations)
	test.That(t, uncapped.Error, test.ShouldBeLessThan, capped.Error)
}

func TestSufficientCostStopsEarly(t *testing.T) {
	known := referenceframe.JointAngles{Shoulder: 60, Elbow: -40, Wrist: -60}
	target := kinematics.SO101().Position(known)

	exhaustive := NewDefaultSolver(logging.NewTestLogger(t))
	early := NewDefaultSolver(logging.NewTestLogger(t), WithConfig(&Config{SufficientCost: 0.001}))

	full, err := exhaustive.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	quick, err := early.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quick.Error, test.ShouldBeLessThan, 0.001)
	test.That(t, quick.Evaluations, test.ShouldBeLessThan, full.Evaluations)
}

func TestSolveCancelled(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := solver.Solve(ctx, r3.Vector{X: 0.2, Y: 0.1}, Options{})
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestSolveInvalidTarget(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	_, err := solver.Solve(context.Background(), r3.Vector{X: math.NaN()}, Options{})
	test.That(t, err, test.ShouldEqual, ErrInvalidTarget)
}

func TestSolveDeterministic(t *testing.T) {
	solver := NewDefaultSolver(logging.NewTestLogger(t))
	target := r3.Vector{X: 0.16, Y: 0.02, Z: 0.01}
	a, err := solver.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	b, err := solver.Solve(context.Background(), target, Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldResemble, a)
}
