package ik

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/robosim/armcore/referenceframe"
)

// Horizontal wrist penalty constants.
const (
	// HorizontalSoftLimit is the |wrist| angle in degrees past which the quadratic penalty applies.
	HorizontalSoftLimit = 20.
	// HorizontalHardLimit is the |wrist| angle in degrees past which the fixed penalty is added.
	HorizontalHardLimit = 45.
	// HorizontalQuadraticWeight scales (|wrist| - HorizontalSoftLimit)^2.
	HorizontalQuadraticWeight = 5e-5
	// HorizontalHardPenalty is added once |wrist| exceeds HorizontalHardLimit.
	HorizontalHardPenalty = 0.5
)

// State is a configuration and the jaw position it produces.
type State struct {
	Position r3.Vector
	Joints   referenceframe.JointAngles
}

// StateMetric are functions which, given a State, produce some score. Lower is better.
type StateMetric func(*State) float64

// NewPositionMetric returns the Euclidean distance in meters from the jaw position to target.
func NewPositionMetric(target r3.Vector) StateMetric {
	return func(s *State) float64 {
		return s.Position.Sub(target).Norm()
	}
}

// NewHorizontalWristMetric penalizes wrist pitch away from the forearm line. The penalty is zero up
// to HorizontalSoftLimit, grows quadratically past it, and jumps by HorizontalHardPenalty past
// HorizontalHardLimit.
func NewHorizontalWristMetric() StateMetric {
	return func(s *State) float64 {
		return HorizontalPenalty(s.Joints.Wrist)
	}
}

// HorizontalPenalty is the penalty NewHorizontalWristMetric applies for a wrist angle in degrees.
func HorizontalPenalty(wrist float64) float64 {
	a := math.Abs(wrist)
	penalty := 0.
	if a > HorizontalSoftLimit {
		d := a - HorizontalSoftLimit
		penalty += HorizontalQuadraticWeight * d * d
	}
	if a > HorizontalHardLimit {
		penalty += HorizontalHardPenalty
	}
	return penalty
}

type combinableStateMetric struct {
	metrics []StateMetric
}

func (m *combinableStateMetric) combinedDist(input *State) float64 {
	dist := 0.
	for _, metric := range m.metrics {
		dist += metric(input)
	}
	return dist
}

// CombineMetrics will take a variable number of Metrics and return a new Metric which will combine
// all given metrics into one, summing their distances.
func CombineMetrics(metrics ...StateMetric) StateMetric {
	cm := &combinableStateMetric{metrics: metrics}
	return cm.combinedDist
}
