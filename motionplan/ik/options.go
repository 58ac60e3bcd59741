package ik

import (
	"github.com/pkg/errors"

	"github.com/robosim/armcore/utils"
)

// default values for the pattern search.
const (
	// A seed whose starting error is below this goes straight to fine refinement.
	defaultFineStartError = 0.02
	// Coarse search returns early once the position error is below this.
	defaultCoarseStopError = 0.002
	// Fine refinement returns early once the position error is below this.
	defaultFineStopError = 0.0005
	// Iterations allowed per step size.
	defaultCoarseIterations = 40
	defaultFineIterations   = 20

	// MaxIterationsEnvVar overrides the default iteration cap.
	MaxIterationsEnvVar = utils.EnvPrefix + "IK_MAX_ITERATIONS"
)

var (
	defaultCoarseSteps = []float64{10, 5, 2, 1, 0.5, 0.2, 0.1, 0.05}
	defaultFineSteps   = []float64{0.5, 0.2, 0.1, 0.05}
	defaultBaseOffsets = []float64{0, 3, -3, 6, -6, 9, -9, 12, -12}

	// defaultMaxIterations of zero leaves the per step caps as the only bound.
	defaultMaxIterations = 0
)

func init() {
	defaultMaxIterations = utils.GetenvInt(MaxIterationsEnvVar, defaultMaxIterations)
}

// Options are the per request inputs to Solve.
type Options struct {
	// FixedBase pins the base angle in degrees instead of searching around atan2(Z, X).
	FixedBase *float64 `json:"fixed_base,omitempty"`
	// PreferHorizontal adds the horizontal wrist penalty to the cost.
	PreferHorizontal bool `json:"prefer_horizontal,omitempty"`
	// FixedWrist pins the wrist in degrees; only shoulder and elbow are searched.
	FixedWrist *float64 `json:"fixed_wrist,omitempty"`
	// MaxIterations caps pattern search iterations per seed across all step sizes. Zero uses the
	// solver default; negative disables the cap.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Angle returns a pointer to a degree value, for use in Options literals.
func Angle(deg float64) *float64 {
	return &deg
}

// Config tunes the pattern search. The zero value of any field means its default.
type Config struct {
	BaseOffsets      []float64 `json:"base_offsets,omitempty"`
	CoarseSteps      []float64 `json:"coarse_steps,omitempty"`
	FineSteps        []float64 `json:"fine_steps,omitempty"`
	CoarseIterations int       `json:"coarse_iterations,omitempty"`
	FineIterations   int       `json:"fine_iterations,omitempty"`
	FineStartError   float64   `json:"fine_start_error,omitempty"`
	CoarseStopError  float64   `json:"coarse_stop_error,omitempty"`
	FineStopError    float64   `json:"fine_stop_error,omitempty"`
	MaxIterations    int       `json:"max_iterations,omitempty"`
	// SufficientCost stops the whole search once a candidate's cost falls below it. Zero searches
	// every seed and base candidate.
	SufficientCost float64 `json:"sufficient_cost,omitempty"`
}

// NewDefaultConfig returns the default search parameters.
func NewDefaultConfig() *Config {
	return &Config{
		BaseOffsets:      append([]float64{}, defaultBaseOffsets...),
		CoarseSteps:      append([]float64{}, defaultCoarseSteps...),
		FineSteps:        append([]float64{}, defaultFineSteps...),
		CoarseIterations: defaultCoarseIterations,
		FineIterations:   defaultFineIterations,
		FineStartError:   defaultFineStartError,
		CoarseStopError:  defaultCoarseStopError,
		FineStopError:    defaultFineStopError,
		MaxIterations:    defaultMaxIterations,
	}
}

// withDefaults fills unset fields.
func (c *Config) withDefaults() *Config {
	d := NewDefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if len(out.BaseOffsets) == 0 {
		out.BaseOffsets = d.BaseOffsets
	}
	if len(out.CoarseSteps) == 0 {
		out.CoarseSteps = d.CoarseSteps
	}
	if len(out.FineSteps) == 0 {
		out.FineSteps = d.FineSteps
	}
	if out.CoarseIterations == 0 {
		out.CoarseIterations = d.CoarseIterations
	}
	if out.FineIterations == 0 {
		out.FineIterations = d.FineIterations
	}
	if out.FineStartError == 0 {
		out.FineStartError = d.FineStartError
	}
	if out.CoarseStopError == 0 {
		out.CoarseStopError = d.CoarseStopError
	}
	if out.FineStopError == 0 {
		out.FineStopError = d.FineStopError
	}
	if out.MaxIterations == 0 {
		out.MaxIterations = d.MaxIterations
	}
	return &out
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c == nil {
		return nil
	}
	for _, s := range append(append([]float64{}, c.CoarseSteps...), c.FineSteps...) {
		if s <= 0 {
			return errors.Errorf("%s: step sizes must be positive, got %v", path, s)
		}
	}
	if c.CoarseIterations < 0 || c.FineIterations < 0 {
		return errors.Errorf("%s: iteration counts cannot be negative", path)
	}
	if c.FineStartError < 0 || c.CoarseStopError < 0 || c.FineStopError < 0 || c.SufficientCost < 0 {
		return errors.Errorf("%s: error thresholds cannot be negative", path)
	}
	if len(c.BaseOffsets) > 9 {
		return errors.Errorf("%s: at most 9 base offsets are searched, got %d", path, len(c.BaseOffsets))
	}
	return nil
}
