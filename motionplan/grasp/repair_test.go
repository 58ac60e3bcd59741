package grasp

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestDefaultRepairStrategiesOrder(t *testing.T) {
	names := []string{}
	for _, s := range DefaultRepairStrategies() {
		names = append(names, s.Name)
	}
	test.That(t, names, test.ShouldResemble, []string{
		"base+5", "base-5", "base+10", "base-10",
		"height+1cm", "height-1cm", "height+2cm", "height-2cm",
		"toggle_orientation",
	})

	initial := Attempt{Side: false, HeightDelta: 0}
	strategies := DefaultRepairStrategies()
	a := strategies[3].Adjust(initial)
	test.That(t, *a.BaseOffset, test.ShouldEqual, -10)
	test.That(t, a.HeightDelta, test.ShouldEqual, 0)
	a = strategies[6].Adjust(initial)
	test.That(t, a.BaseOffset, test.ShouldBeNil)
	test.That(t, a.HeightDelta, test.ShouldAlmostEqual, 0.02)
	a = strategies[8].Adjust(initial)
	test.That(t, a.Side, test.ShouldBeTrue)
	test.That(t, initial.Side, test.ShouldBeFalse)
}

func fakeAttempts(errs map[string]float64, calls *[]string) attemptFunc {
	return func(_ context.Context, a Attempt) (*candidatePlan, error) {
		*calls = append(*calls, a.Strategy)
		e, ok := errs[a.Strategy]
		if !ok {
			e = 0.5
		}
		return &candidatePlan{attempt: a, errors: PhaseErrors{Grasp: e}}, nil
	}
}

func TestRunLadderStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	initial := &candidatePlan{errors: PhaseErrors{Grasp: 0.09}}
	best, ran, err := runLadder(context.Background(), Attempt{}, initial, DefaultRepairStrategies(), 0.03,
		fakeAttempts(map[string]float64{"base+5": 0.08, "base-5": 0.05, "base+10": 0.02, "base-10": 0.001}, &calls))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldResemble, []string{"base+5", "base-5", "base+10"})
	test.That(t, ran, test.ShouldResemble, calls)
	test.That(t, best.errors.Grasp, test.ShouldEqual, 0.02)
	test.That(t, best.attempt.Strategy, test.ShouldEqual, "base+10")
	test.That(t, *best.attempt.BaseOffset, test.ShouldEqual, 10)
}

func TestRunLadderKeepsBest(t *testing.T) {
	var calls []string
	initial := &candidatePlan{errors: PhaseErrors{Grasp: 0.09}}
	best, ran, err := runLadder(context.Background(), Attempt{}, initial, DefaultRepairStrategies(), 0.03,
		fakeAttempts(map[string]float64{"height-1cm": 0.045, "toggle_orientation": 0.06}, &calls))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ran, test.ShouldHaveLength, 9)
	test.That(t, best.attempt.Strategy, test.ShouldEqual, "height-1cm")

	// Nothing beats the initial plan.
	calls = nil
	good := &candidatePlan{errors: PhaseErrors{Grasp: 0.035}}
	best, _, err = runLadder(context.Background(), Attempt{}, good, DefaultRepairStrategies(), 0.03,
		fakeAttempts(nil, &calls))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best, test.ShouldEqual, good)
}

func TestRunLadderErrors(t *testing.T) {
	boom := errors.New("transport down")
	initial := &candidatePlan{errors: PhaseErrors{Grasp: 0.09}}
	_, ran, err := runLadder(context.Background(), Attempt{}, initial, DefaultRepairStrategies(), 0.03,
		func(context.Context, Attempt) (*candidatePlan, error) { return nil, boom })
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
	test.That(t, ran, test.ShouldHaveLength, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	best, ran, err := runLadder(ctx, Attempt{}, initial, DefaultRepairStrategies(), 0.03, nil)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, ran, test.ShouldBeEmpty)
	test.That(t, best, test.ShouldEqual, initial)
}

func TestObject(t *testing.T) {
	typ, err := ParseObjectType(" Cylinder ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, typ, test.ShouldEqual, Cylinder)
	_, err = ParseObjectType("pyramid")
	test.That(t, err, test.ShouldNotBeNil)

	// Height 0.06, bottom 0.01, gripped 35% up.
	cyl := Object{Position: r3.Vector{X: 0.2, Y: 0.04, Z: 0.01}, Type: Cylinder, Scale: 0.01}
	test.That(t, cyl.GraspPoint().Y, test.ShouldAlmostEqual, 0.031)
	test.That(t, cyl.GraspPoint().X, test.ShouldEqual, 0.2)

	cube := Object{Position: r3.Vector{X: 0.2, Y: 0.04}, Type: Cube}
	test.That(t, cube.GraspPoint(), test.ShouldResemble, cube.Position)
}

func TestOptions(t *testing.T) {
	o := (&Options{MaxReach: 0.3}).withDefaults()
	test.That(t, o.MaxReach, test.ShouldEqual, 0.3)
	test.That(t, o.JawHeightWeight, test.ShouldEqual, DefaultJawHeightWeight)
	test.That(t, o.LiftHeights, test.ShouldResemble, []float64{0.15, 0.18, 0.20, 0.12})
	test.That(t, o.CloseDurationMs, test.ShouldEqual, 800)

	test.That(t, (&Options{}).Validate("planner"), test.ShouldBeNil)
	err := (&Options{CloseDurationMs: 100}).Validate("planner")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "planner: close_duration_ms")
	test.That(t, (&Options{MaxReach: -1}).Validate("planner"), test.ShouldBeNil)
	test.That(t, (&Options{MaxReach: -1}).withDefaults().MaxReach, test.ShouldEqual, -1)
	err = (&Options{LiftMinRise: -1}).Validate("planner")
	test.That(t, err.Error(), test.ShouldContainSubstring, "lift_min_rise")
	err = (&Options{AcceptThreshold: 0.05, RetryThreshold: 0.04}).Validate("planner")
	test.That(t, err, test.ShouldNotBeNil)
}
