package ik

import (
	"github.com/robosim/armcore/referenceframe"
)

// searchedJoints are perturbed in this order on every iteration.
var searchedJoints = []referenceframe.JointName{referenceframe.Shoulder, referenceframe.Elbow, referenceframe.Wrist}

type candidate struct {
	joints referenceframe.JointAngles
	err    float64
	cost   float64
	seed   string
}

// search is the state of one Solve call.
type search struct {
	solver   *Solver
	position StateMetric
	cost     StateMetric
	// penalty disables the early exits, which compare position error only.
	penalty     bool
	maxIter     int
	evaluations int
}

func (r *search) evaluate(j referenceframe.JointAngles) (float64, float64) {
	r.evaluations++
	st := &State{Position: r.solver.kin.Position(j), Joints: j}
	return r.position(st), r.cost(st)
}

// refine runs the pattern search from start. Seeds already within FineStartError get the short
// fine schedule and its stricter early exit, the rest the full coarse schedule.
func (r *search) refine(start referenceframe.JointAngles, fixedWrist bool) candidate {
	cfg := r.solver.cfg
	cur := candidate{joints: start}
	cur.err, cur.cost = r.evaluate(start)

	steps, perStep, stopErr := cfg.CoarseSteps, cfg.CoarseIterations, cfg.CoarseStopError
	if cur.err < cfg.FineStartError {
		steps, perStep, stopErr = cfg.FineSteps, cfg.FineIterations, cfg.FineStopError
	}

	joints := searchedJoints
	if fixedWrist {
		joints = searchedJoints[:2]
	}

	total := 0
	for _, step := range steps {
		for it := 0; it < perStep; it++ {
			if r.maxIter > 0 && total >= r.maxIter {
				return cur
			}
			total++

			improved := false
			for _, name := range joints {
				if next, ok := r.bestMove(cur, name, step); ok {
					cur = next
					improved = true
				}
			}
			if !r.penalty && cur.err < stopErr {
				return cur
			}
			if !improved {
				break
			}
		}
	}
	return cur
}

// bestMove tries name at +step and -step and returns the lower cost of the two if it beats cur.
func (r *search) bestMove(cur candidate, name referenceframe.JointName, step float64) (candidate, bool) {
	v, _ := cur.joints.Get(name)
	best, found := cur, false
	for _, d := range [2]float64{step, -step} {
		nv := r.solver.limits.ClampJoint(name, v+d)
		if nv == v {
			continue
		}
		j := cur.joints.Set(name, nv)
		e, c := r.evaluate(j)
		if c < best.cost {
			best = candidate{joints: j, err: e, cost: c}
			found = true
		}
	}
	return best, found
}
