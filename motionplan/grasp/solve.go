package grasp

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/spatialmath"
	"github.com/robosim/armcore/utils"
)

// jointOffset is a (shoulder, elbow, wrist) delta in degrees applied to the grasp pose.
type jointOffset struct {
	Shoulder, Elbow, Wrist float64
}

func (o jointOffset) apply(j referenceframe.JointAngles) referenceframe.JointAngles {
	j.Shoulder += o.Shoulder
	j.Elbow += o.Elbow
	j.Wrist += o.Wrist
	return j
}

// Offsets tried, in order, to raise the jaw straight up from a top-down grasp.
var verticalApproachOffsets = []jointOffset{
	{-10, -10, -5},
	{-10, -5, 0},
	{-15, -5, 0},
	{-25, 0, -5},
	{-15, -10, -5},
	{-20, -5, -5},
	{-30, -10, -5},
}

// Offsets tried, in order, to back the jaw away from the base at the grasp height.
var sideApproachOffsets = []jointOffset{
	{30, -10, 25},
	{25, -10, 20},
	{30, -20, 10},
	{30, -25, 0},
	{25, -5, 30},
}

// Acceptance bounds for a derived approach, meters.
const (
	verticalMinRise   = 0.04
	verticalMaxDrift  = 0.03
	sideMinBackoff    = 0.03
	sideMaxHeightDiff = 0.015
)

// graspChoice is the winning grasp candidate.
type graspChoice struct {
	joints referenceframe.JointAngles
	// jaw is the estimated jaw position of the candidate.
	jaw r3.Vector
	// err is the distance from jaw to the true aim point.
	err   float64
	score float64
	label string
}

// solveGrasp runs every grasp candidate and keeps the lowest scoring one. A candidate's score is
// its ik error plus JawHeightWeight times the miss between its estimated jaw height and the aim
// height. Side closures, low targets and cylinders also try horizontal jaw solves.
func (p *Planner) solveGrasp(
	ctx context.Context, pc *planContext, side bool, aim, solveAim r3.Vector, base *float64,
) (graspChoice, error) {
	ctx, span := trace.StartSpan(ctx, "grasp::solveGrasp")
	defer span.End()
	defer p.timed(pc.meta, "solveGrasp")()

	var candidates []graspChoice
	try := func(target r3.Vector, opts ik.Options, jawLift float64, label string) error {
		res, err := p.solve(ctx, pc, target, opts)
		if err != nil {
			return err
		}
		jaw := spatialmath.Raise(res.Position, jawLift)
		candidates = append(candidates, graspChoice{
			joints: res.Joints,
			jaw:    jaw,
			err:    jaw.Sub(aim).Norm(),
			score:  res.Error + p.opts.JawHeightWeight*math.Abs(jaw.Y-aim.Y),
			label:  label,
		})
		return nil
	}

	for _, off := range p.opts.GraspHeightOffsets {
		if err := try(spatialmath.Raise(solveAim, off), ik.Options{FixedBase: base}, 0,
			fmt.Sprintf("offset%+.0fcm", off*100)); err != nil {
			return graspChoice{}, err
		}
	}
	if side || aim.Y < p.opts.LowObjectHeight || pc.obj.Type == Cylinder {
		for _, off := range p.opts.GraspHeightOffsets {
			if err := try(spatialmath.Raise(solveAim, off), ik.Options{FixedBase: base, PreferHorizontal: true}, 0,
				fmt.Sprintf("horizontal%+.0fcm", off*100)); err != nil {
				return graspChoice{}, err
			}
		}
	}
	for _, w := range p.opts.FixedWristAngles {
		drop := p.opts.JawToTipOffset * math.Sin(utils.DegToRad(math.Abs(w)))
		if err := try(spatialmath.Raise(solveAim, -drop), ik.Options{FixedBase: base, FixedWrist: ik.Angle(w)}, drop,
			fmt.Sprintf("wrist%.0f", w)); err != nil {
			return graspChoice{}, err
		}
	}

	return lo.MinBy(candidates, func(a, b graspChoice) bool { return a.score < b.score }), nil
}

// approach derives the pre-grasp pose. Joint offsets from the grasp pose are tried first; their
// error is the grasp error. Failing that, independent solves above the grasp point that rise at
// least verticalMinRise keep the lowest error. When none rises far enough the grasp pose is raised
// directly and the approach counts as derived.
func (p *Planner) approach(
	ctx context.Context, pc *planContext, a Attempt, aim, solveAim r3.Vector, g graspChoice,
) (referenceframe.JointAngles, float64, bool, error) {
	ctx, span := trace.StartSpan(ctx, "grasp::approach")
	defer span.End()
	defer p.timed(pc.meta, "approach")()

	graspPos := p.executedPosition(g.joints, a.Side)
	offsets := verticalApproachOffsets
	if a.Side {
		offsets = sideApproachOffsets
	}
	for _, off := range offsets {
		j := p.limits.Clamp(off.apply(g.joints))
		pos := p.executedPosition(j, a.Side)
		if a.Side {
			backoff := spatialmath.Radial(pos) - spatialmath.Radial(graspPos)
			if backoff >= sideMinBackoff && math.Abs(pos.Y-graspPos.Y) <= sideMaxHeightDiff {
				return j, g.err, true, nil
			}
			continue
		}
		rise := pos.Y - graspPos.Y
		if rise >= verticalMinRise && spatialmath.HorizontalDistance(pos, graspPos) <= verticalMaxDrift {
			return j, g.err, true, nil
		}
	}

	type solvedApproach struct {
		joints referenceframe.JointAngles
		err    float64
		rise   float64
	}
	base := ik.Angle(g.joints.Base)
	solved := make([]solvedApproach, 0, len(p.opts.ApproachHeights))
	for _, h := range p.opts.ApproachHeights {
		res, err := p.solve(ctx, pc, spatialmath.Raise(solveAim, h), ik.Options{FixedBase: base})
		if err != nil {
			return referenceframe.JointAngles{}, 0, false, err
		}
		solved = append(solved, solvedApproach{
			joints: res.Joints,
			err:    res.Position.Sub(spatialmath.Raise(aim, h)).Norm(),
			rise:   p.executedPosition(res.Joints, a.Side).Y - graspPos.Y,
		})
	}
	risen := lo.Filter(solved, func(s solvedApproach, _ int) bool { return s.rise >= verticalMinRise })
	if len(risen) > 0 {
		best := lo.MinBy(risen, func(x, y solvedApproach) bool { return x.err < y.err })
		return best.joints, best.err, false, nil
	}
	if j, ok := p.raise(g.joints, graspPos, a.Side); ok {
		return j, g.err, true, nil
	}
	if len(solved) == 0 {
		return g.joints, g.err, true, nil
	}
	best := lo.MaxBy(solved, func(x, y solvedApproach) bool { return x.rise > y.rise })
	return best.joints, best.err, false, nil
}

// raiseSteps are the shoulder and elbow reductions, degrees, tried to lift the jaw off the grasp.
var raiseSteps = []float64{5, 10, 15, 20, 25, 30, 40, 50, 60}

// raise lifts the grasp pose by folding the shoulder back, then the elbow, until the jaw is at
// least verticalMinRise above graspPos.
func (p *Planner) raise(grasp referenceframe.JointAngles, graspPos r3.Vector, side bool) (referenceframe.JointAngles, bool) {
	for _, joint := range []referenceframe.JointName{referenceframe.Shoulder, referenceframe.Elbow} {
		for _, step := range raiseSteps {
			v, _ := grasp.Get(joint)
			j := p.limits.Clamp(grasp.Set(joint, v-step))
			if p.executedPosition(j, side).Y-graspPos.Y >= verticalMinRise {
				return j, true
			}
		}
	}
	return referenceframe.JointAngles{}, false
}

// lift solves above the grasp point with the base pinned to the grasp's. The first height that
// rises at least LiftMinRise with an error under LiftMaxError wins, otherwise the lowest error.
func (p *Planner) lift(ctx context.Context, pc *planContext, aim, solveAim r3.Vector, g graspChoice) (referenceframe.JointAngles, float64, error) {
	ctx, span := trace.StartSpan(ctx, "grasp::lift")
	defer span.End()
	defer p.timed(pc.meta, "lift")()

	graspPos := p.kin.Position(g.joints)
	base := ik.Angle(g.joints.Base)
	best, bestErr := referenceframe.JointAngles{}, math.Inf(1)
	for _, h := range p.opts.LiftHeights {
		res, err := p.solve(ctx, pc, spatialmath.Raise(solveAim, h), ik.Options{FixedBase: base})
		if err != nil {
			return referenceframe.JointAngles{}, 0, err
		}
		e := res.Position.Sub(spatialmath.Raise(aim, h)).Norm()
		if res.Position.Y-graspPos.Y >= p.opts.LiftMinRise && e < p.opts.LiftMaxError {
			return res.Joints, e, nil
		}
		if e < bestErr {
			best, bestErr = res.Joints, e
		}
	}
	return best, bestErr, nil
}
