// Package examplestore keeps verified pick examples: joint sequences that are known to have
// worked for an object of a given type at a given position. The grasp planner falls back to the
// nearest example when numeric solving cannot reach a target.
package examplestore

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/robosim/armcore/referenceframe"
)

// Object types an example can be recorded for.
var ObjectTypes = []string{"cube", "cylinder", "ball"}

// Defaults for similarity queries.
const (
	DefaultMaxDistance  = 0.05
	DefaultSimilarLimit = 5
	// HeatmapGridSize is the cell size in meters of the coverage heatmap.
	HeatmapGridSize = 0.05
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("example not found")
	// ErrInvalidExample wraps submission validation failures.
	ErrInvalidExample = errors.New("invalid example")
)

// SequenceStep is one recorded step. GripperOnly steps move only the gripper.
type SequenceStep struct {
	referenceframe.JointAngles
	GripperOnly bool `json:"_gripperOnly,omitempty"`
}

// RecordedErrors are the IK errors in meters measured when the example was recorded.
type RecordedErrors struct {
	Approach float64 `json:"approach"`
	Grasp    float64 `json:"grasp"`
	Lift     float64 `json:"lift"`
}

// Max returns the largest of the three errors.
func (e RecordedErrors) Max() float64 {
	return math.Max(e.Approach, math.Max(e.Grasp, e.Lift))
}

// Example is a stored verified pick.
type Example struct {
	ID             string         `json:"id"`
	ObjectType     string         `json:"objectType"`
	ObjectPosition r3.Vector      `json:"objectPosition"`
	ObjectScale    float64        `json:"objectScale,omitempty"`
	JointSequence  []SequenceStep `json:"jointSequence"`
	RecordedErrors RecordedErrors `json:"ikErrors"`
	Description    string         `json:"userMessage,omitempty"`
	Contributor    string         `json:"contributor,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Phases returns the approach, grasp and lift poses: the first, second and last arm moving steps.
// ok is false for sequences with fewer than three arm moving steps.
func (e *Example) Phases() (approach, grasp, lift referenceframe.JointAngles, ok bool) {
	arm := lo.Filter(e.JointSequence, func(s SequenceStep, _ int) bool { return !s.GripperOnly })
	if len(arm) < 3 {
		return approach, grasp, lift, false
	}
	return arm[0].JointAngles, arm[1].JointAngles, arm[len(arm)-1].JointAngles, true
}

// Submission is an example as provided by a contributor, before it is assigned an id.
type Submission struct {
	ObjectType     string         `json:"objectType"`
	ObjectPosition r3.Vector      `json:"objectPosition"`
	ObjectScale    float64        `json:"objectScale"`
	JointSequence  []SequenceStep `json:"jointSequence"`
	RecordedErrors RecordedErrors `json:"ikErrors"`
	Description    string         `json:"userMessage"`
	Contributor    string         `json:"contributor,omitempty"`
}

// Validate checks the object type, the position and that the sequence has an approach, grasp and
// lift within joint limits.
func (s *Submission) Validate() error {
	if !lo.Contains(ObjectTypes, s.ObjectType) {
		return errors.Wrapf(ErrInvalidExample, "unknown object type %q", s.ObjectType)
	}
	for _, f := range []float64{s.ObjectPosition.X, s.ObjectPosition.Y, s.ObjectPosition.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Wrap(ErrInvalidExample, "object position has non-finite coordinates")
		}
	}
	if s.ObjectScale < 0 {
		return errors.Wrapf(ErrInvalidExample, "object scale cannot be negative, got %v", s.ObjectScale)
	}
	ex := s.example()
	if _, _, _, ok := ex.Phases(); !ok {
		return errors.Wrapf(ErrInvalidExample, "joint sequence needs approach, grasp and lift steps, got %d steps",
			len(s.JointSequence))
	}
	limits := referenceframe.DefaultJointLimits()
	for i, step := range s.JointSequence {
		if err := step.CheckLimits(limits); err != nil {
			return errors.Wrapf(ErrInvalidExample, "step %d: %v", i, err)
		}
	}
	return nil
}

func (s *Submission) example() *Example {
	return &Example{
		ObjectType:     s.ObjectType,
		ObjectPosition: s.ObjectPosition,
		ObjectScale:    s.ObjectScale,
		JointSequence:  append([]SequenceStep{}, s.JointSequence...),
		RecordedErrors: s.RecordedErrors,
		Description:    s.Description,
		Contributor:    s.Contributor,
	}
}

// Match is a query hit. Similarity is 1 for an exact position match and falls linearly to 0 at
// the query's max distance.
type Match struct {
	Example    *Example `json:"example"`
	Distance   float64  `json:"distance"`
	Similarity float64  `json:"similarity"`
}

// HeatmapCell counts examples whose X/Z position rounds to the cell center.
type HeatmapCell struct {
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	Count int     `json:"count"`
}

// Stats summarizes the store.
type Stats struct {
	Total       int            `json:"totalExamples"`
	ByType      map[string]int `json:"byObjectType"`
	Heatmap     []HeatmapCell  `json:"coverageHeatmap"`
	LastUpdated time.Time      `json:"lastUpdated"`
}
