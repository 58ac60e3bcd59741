package trajectory

import (
	"github.com/pkg/errors"

	"github.com/robosim/armcore/referenceframe"
)

// Default hardware limits for the SO-101 servos.
const (
	DefaultMaxVelocity       = 120. // deg/s
	DefaultMaxAcceleration   = 600. // deg/s^2
	DefaultNearLimitMargin   = 5.   // deg
	DefaultMinGripperCloseMs = 800.
	// DefaultLiftShoulderDrop is how far the shoulder must decrease after a close to count as a lift.
	DefaultLiftShoulderDrop = 10.
)

// Thresholds relative to the configured maxima.
const (
	velocityErrorFactor     = 1.2
	velocityWarningFactor   = 0.9
	accelerationErrorFactor = 1.5
	// gripperOpenAbove and gripperClosedBelow split the gripper range in percent.
	gripperOpenAbove   = 50.
	gripperClosedBelow = 50.
)

// Constraints is the table a trajectory is checked against. Joints missing from MaxVelocity or
// MaxAcceleration are not rate checked.
type Constraints struct {
	Limits            referenceframe.JointLimits
	MaxVelocity       map[referenceframe.JointName]float64
	MaxAcceleration   map[referenceframe.JointName]float64
	NearLimitMargin   float64
	MinGripperCloseMs float64
	LiftShoulderDrop  float64
}

// DefaultConstraints returns the joint limits with the default rate limits on every arm joint.
func DefaultConstraints() Constraints {
	return (&ConstraintsConfig{}).Constraints()
}

// ConstraintsConfig is the file form of Constraints. Zero fields take their defaults.
type ConstraintsConfig struct {
	MaxVelocity       float64 `json:"max_velocity_deg_s,omitempty"`
	MaxAcceleration   float64 `json:"max_acceleration_deg_s2,omitempty"`
	NearLimitMargin   float64 `json:"near_limit_margin_deg,omitempty"`
	MinGripperCloseMs float64 `json:"min_gripper_close_ms,omitempty"`
	LiftShoulderDrop  float64 `json:"lift_shoulder_drop_deg,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *ConstraintsConfig) Validate(path string) error {
	if cfg == nil {
		return nil
	}
	for name, v := range map[string]float64{
		"max_velocity_deg_s":      cfg.MaxVelocity,
		"max_acceleration_deg_s2": cfg.MaxAcceleration,
		"near_limit_margin_deg":   cfg.NearLimitMargin,
		"min_gripper_close_ms":    cfg.MinGripperCloseMs,
		"lift_shoulder_drop_deg":  cfg.LiftShoulderDrop,
	} {
		if v < 0 {
			return errors.Errorf("%s: %s cannot be negative, got %v", path, name, v)
		}
	}
	return nil
}

// Constraints expands the config into a full table over the default joint limits.
func (cfg *ConstraintsConfig) Constraints() Constraints {
	if cfg == nil {
		cfg = &ConstraintsConfig{}
	}
	orDefault := func(v, def float64) float64 {
		if v == 0 {
			return def
		}
		return v
	}
	vel := orDefault(cfg.MaxVelocity, DefaultMaxVelocity)
	acc := orDefault(cfg.MaxAcceleration, DefaultMaxAcceleration)
	c := Constraints{
		Limits:            referenceframe.DefaultJointLimits(),
		MaxVelocity:       map[referenceframe.JointName]float64{},
		MaxAcceleration:   map[referenceframe.JointName]float64{},
		NearLimitMargin:   orDefault(cfg.NearLimitMargin, DefaultNearLimitMargin),
		MinGripperCloseMs: orDefault(cfg.MinGripperCloseMs, DefaultMinGripperCloseMs),
		LiftShoulderDrop:  orDefault(cfg.LiftShoulderDrop, DefaultLiftShoulderDrop),
	}
	for _, name := range referenceframe.ArmJoints {
		c.MaxVelocity[name] = vel
		c.MaxAcceleration[name] = acc
	}
	return c
}
