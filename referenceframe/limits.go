package referenceframe

import (
	"go.uber.org/multierr"

	"github.com/robosim/armcore/utils"
)

// Limit represents the limits of motion for a joint, in degrees.
type Limit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the range.
func (l Limit) Clamp(v float64) float64 {
	return utils.Clamp(v, l.Min, l.Max)
}

// Contains reports whether v lies inside the range, bounds included.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Margin returns how far v lies from the nearest bound. Negative when out of range.
func (l Limit) Margin(v float64) float64 {
	lo, hi := v-l.Min, l.Max-v
	if lo < hi {
		return lo
	}
	return hi
}

// JointLimits maps each joint to its range of motion.
type JointLimits map[JointName]Limit

// DefaultJointLimits returns the SO-101 joint limits.
func DefaultJointLimits() JointLimits {
	return JointLimits{
		Base:      {Min: -110, Max: 110},
		Shoulder:  {Min: -100, Max: 100},
		Elbow:     {Min: -97, Max: 97},
		Wrist:     {Min: -95, Max: 95},
		WristRoll: {Min: -157, Max: 163},
		Gripper:   {Min: 0, Max: 100},
	}
}

// Limit returns the range for a joint. Unknown joints are unbounded by returning false.
func (jl JointLimits) Limit(name JointName) (Limit, bool) {
	l, ok := jl[name]
	return l, ok
}

// ClampJoint clamps a single joint value.
func (jl JointLimits) ClampJoint(name JointName, v float64) float64 {
	if l, ok := jl[name]; ok {
		return l.Clamp(v)
	}
	return v
}

// Clamp returns j with every present joint clamped to its range.
func (jl JointLimits) Clamp(j JointAngles) JointAngles {
	out := JointAngles{
		Base:      jl.ClampJoint(Base, j.Base),
		Shoulder:  jl.ClampJoint(Shoulder, j.Shoulder),
		Elbow:     jl.ClampJoint(Elbow, j.Elbow),
		Wrist:     jl.ClampJoint(Wrist, j.Wrist),
		WristRoll: jl.ClampJoint(WristRoll, j.WristRoll),
	}
	if j.Gripper != nil {
		out.Gripper = GripperPercent(jl.ClampJoint(Gripper, *j.Gripper))
	}
	return out
}

// Check returns a combined error with one JointLimitError per out of range joint.
func (jl JointLimits) Check(j JointAngles) error {
	var err error
	for _, name := range AllJoints {
		v, ok := j.Get(name)
		if !ok {
			continue
		}
		if l, ok := jl[name]; ok && !l.Contains(v) {
			err = multierr.Append(err, NewJointLimitError(name, v, l))
		}
	}
	return err
}

// Validate checks that every range is well formed.
func (jl JointLimits) Validate() error {
	var err error
	for name, l := range jl {
		if l.Min > l.Max {
			err = multierr.Append(err, NewInvalidLimitError(name, l))
		}
	}
	return err
}
