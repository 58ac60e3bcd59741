package grasp

import (
	"github.com/pkg/errors"
)

// Default planner parameters. Distances are meters, angles degrees, durations milliseconds.
const (
	// DefaultJawHeightWeight scales the jaw height term of the grasp candidate score.
	DefaultJawHeightWeight = 0.5
	// DefaultJawToTipOffset is the distance from the jaw contact to the fingertip used when the
	// wrist is pinned at an angle.
	DefaultJawToTipOffset = 0.02
	// DefaultMaxReach is the radial reach of the rated workspace.
	DefaultMaxReach = 0.28
	// DefaultLowObjectHeight is the grasp height below which an object counts as low.
	DefaultLowObjectHeight = 0.05

	DefaultRetryThreshold    = 0.04
	DefaultAcceptThreshold   = 0.03
	DefaultLikelyUnreachable = 0.06

	DefaultMaxExampleDistance   = 0.05
	DefaultExampleMaxGraspError = 0.02

	DefaultLiftMinRise  = 0.14
	DefaultLiftMaxError = 0.02

	DefaultApproachDurationMs = 1200
	DefaultGraspDurationMs    = 800
	DefaultCloseDurationMs    = 800
	DefaultHoldDurationMs     = 300
	DefaultLiftDurationMs     = 1000

	// MinCloseDurationMs is the shortest gripper close the hardware tolerates.
	MinCloseDurationMs = 800
)

var (
	defaultGraspHeightOffsets = []float64{0, 0.01, 0.02, 0.03}
	defaultFixedWristAngles   = []float64{-30, -45, -60}
	defaultApproachHeights    = []float64{0.05, 0.07, 0.10}
	defaultLiftHeights        = []float64{0.15, 0.18, 0.20, 0.12}
)

// Options tunes the planner. The zero value of any field means its default.
type Options struct {
	JawHeightWeight float64 `json:"jaw_height_weight,omitempty"`
	JawToTipOffset  float64 `json:"jaw_to_tip_offset,omitempty"`
	// MaxReach bounds the radial reach targets are clamped to. A negative value disables the clamp.
	MaxReach float64 `json:"max_reach,omitempty"`
	// LowCubeSideGrasp grips cubes lower than LowObjectHeight from the side instead of from above.
	LowCubeSideGrasp bool    `json:"low_cube_side_grasp,omitempty"`
	LowObjectHeight  float64 `json:"low_object_height,omitempty"`

	// RetryThreshold is the max phase error above which repairs run and the plan is flagged.
	RetryThreshold float64 `json:"retry_threshold,omitempty"`
	// AcceptThreshold is the max phase error that ends the repair ladder.
	AcceptThreshold   float64 `json:"accept_threshold,omitempty"`
	LikelyUnreachable float64 `json:"likely_unreachable,omitempty"`

	MaxExampleDistance   float64 `json:"max_example_distance,omitempty"`
	ExampleMaxGraspError float64 `json:"example_max_grasp_error,omitempty"`

	GraspHeightOffsets []float64 `json:"grasp_height_offsets,omitempty"`
	FixedWristAngles   []float64 `json:"fixed_wrist_angles,omitempty"`
	ApproachHeights    []float64 `json:"approach_heights,omitempty"`
	LiftHeights        []float64 `json:"lift_heights,omitempty"`
	LiftMinRise        float64   `json:"lift_min_rise,omitempty"`
	LiftMaxError       float64   `json:"lift_max_error,omitempty"`

	ApproachDurationMs float64 `json:"approach_duration_ms,omitempty"`
	GraspDurationMs    float64 `json:"grasp_duration_ms,omitempty"`
	CloseDurationMs    float64 `json:"close_duration_ms,omitempty"`
	HoldDurationMs     float64 `json:"hold_duration_ms,omitempty"`
	LiftDurationMs     float64 `json:"lift_duration_ms,omitempty"`
}

// NewDefaultOptions returns the default planner parameters.
func NewDefaultOptions() *Options {
	return &Options{
		JawHeightWeight:      DefaultJawHeightWeight,
		JawToTipOffset:       DefaultJawToTipOffset,
		MaxReach:             DefaultMaxReach,
		LowObjectHeight:      DefaultLowObjectHeight,
		RetryThreshold:       DefaultRetryThreshold,
		AcceptThreshold:      DefaultAcceptThreshold,
		LikelyUnreachable:    DefaultLikelyUnreachable,
		MaxExampleDistance:   DefaultMaxExampleDistance,
		ExampleMaxGraspError: DefaultExampleMaxGraspError,
		GraspHeightOffsets:   append([]float64{}, defaultGraspHeightOffsets...),
		FixedWristAngles:     append([]float64{}, defaultFixedWristAngles...),
		ApproachHeights:      append([]float64{}, defaultApproachHeights...),
		LiftHeights:          append([]float64{}, defaultLiftHeights...),
		LiftMinRise:          DefaultLiftMinRise,
		LiftMaxError:         DefaultLiftMaxError,
		ApproachDurationMs:   DefaultApproachDurationMs,
		GraspDurationMs:      DefaultGraspDurationMs,
		CloseDurationMs:      DefaultCloseDurationMs,
		HoldDurationMs:       DefaultHoldDurationMs,
		LiftDurationMs:       DefaultLiftDurationMs,
	}
}

func orDefault(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultList(v, d []float64) []float64 {
	if len(v) == 0 {
		return d
	}
	return v
}

// withDefaults fills unset fields.
func (o *Options) withDefaults() *Options {
	d := NewDefaultOptions()
	if o == nil {
		return d
	}
	out := *o
	out.JawHeightWeight = orDefault(out.JawHeightWeight, d.JawHeightWeight)
	out.JawToTipOffset = orDefault(out.JawToTipOffset, d.JawToTipOffset)
	out.MaxReach = orDefault(out.MaxReach, d.MaxReach)
	out.LowObjectHeight = orDefault(out.LowObjectHeight, d.LowObjectHeight)
	out.RetryThreshold = orDefault(out.RetryThreshold, d.RetryThreshold)
	out.AcceptThreshold = orDefault(out.AcceptThreshold, d.AcceptThreshold)
	out.LikelyUnreachable = orDefault(out.LikelyUnreachable, d.LikelyUnreachable)
	out.MaxExampleDistance = orDefault(out.MaxExampleDistance, d.MaxExampleDistance)
	out.ExampleMaxGraspError = orDefault(out.ExampleMaxGraspError, d.ExampleMaxGraspError)
	out.GraspHeightOffsets = orDefaultList(out.GraspHeightOffsets, d.GraspHeightOffsets)
	out.FixedWristAngles = orDefaultList(out.FixedWristAngles, d.FixedWristAngles)
	out.ApproachHeights = orDefaultList(out.ApproachHeights, d.ApproachHeights)
	out.LiftHeights = orDefaultList(out.LiftHeights, d.LiftHeights)
	out.LiftMinRise = orDefault(out.LiftMinRise, d.LiftMinRise)
	out.LiftMaxError = orDefault(out.LiftMaxError, d.LiftMaxError)
	out.ApproachDurationMs = orDefault(out.ApproachDurationMs, d.ApproachDurationMs)
	out.GraspDurationMs = orDefault(out.GraspDurationMs, d.GraspDurationMs)
	out.CloseDurationMs = orDefault(out.CloseDurationMs, d.CloseDurationMs)
	out.HoldDurationMs = orDefault(out.HoldDurationMs, d.HoldDurationMs)
	out.LiftDurationMs = orDefault(out.LiftDurationMs, d.LiftDurationMs)
	return &out
}

// Validate ensures all parts of the options are valid.
func (o *Options) Validate(path string) error {
	if o == nil {
		return nil
	}
	for name, v := range map[string]float64{
		"jaw_height_weight":       o.JawHeightWeight,
		"jaw_to_tip_offset":       o.JawToTipOffset,
		"low_object_height":       o.LowObjectHeight,
		"retry_threshold":         o.RetryThreshold,
		"accept_threshold":        o.AcceptThreshold,
		"likely_unreachable":      o.LikelyUnreachable,
		"max_example_distance":    o.MaxExampleDistance,
		"example_max_grasp_error": o.ExampleMaxGraspError,
		"lift_min_rise":           o.LiftMinRise,
		"lift_max_error":          o.LiftMaxError,
		"approach_duration_ms":    o.ApproachDurationMs,
		"grasp_duration_ms":       o.GraspDurationMs,
		"hold_duration_ms":        o.HoldDurationMs,
		"lift_duration_ms":        o.LiftDurationMs,
	} {
		if v < 0 {
			return errors.Errorf("%s: %s cannot be negative, got %v", path, name, v)
		}
	}
	if o.CloseDurationMs != 0 && o.CloseDurationMs < MinCloseDurationMs {
		return errors.Errorf("%s: close_duration_ms must be at least %d, got %v", path, MinCloseDurationMs, o.CloseDurationMs)
	}
	if o.AcceptThreshold != 0 && o.RetryThreshold != 0 && o.AcceptThreshold > o.RetryThreshold {
		return errors.Errorf("%s: accept_threshold %v cannot exceed retry_threshold %v", path, o.AcceptThreshold, o.RetryThreshold)
	}
	for _, h := range o.LiftHeights {
		if h <= 0 {
			return errors.Errorf("%s: lift_heights must be positive, got %v", path, h)
		}
	}
	for _, h := range o.ApproachHeights {
		if h <= 0 {
			return errors.Errorf("%s: approach_heights must be positive, got %v", path, h)
		}
	}
	return nil
}
