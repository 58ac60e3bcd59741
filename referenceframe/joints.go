// Package referenceframe defines the joint space of the arm: joint names, joint angles and the
// joint limits table every other package clamps against.
package referenceframe

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// JointName identifies one joint of the arm.
type JointName string

// The arm joints, ordered from the base outwards, followed by the gripper.
const (
	Base      JointName = "base"
	Shoulder  JointName = "shoulder"
	Elbow     JointName = "elbow"
	Wrist     JointName = "wrist"
	WristRoll JointName = "wristRoll"
	Gripper   JointName = "gripper"
)

// ArmJoints lists the five revolute joints in chain order.
var ArmJoints = []JointName{Base, Shoulder, Elbow, Wrist, WristRoll}

// AllJoints lists the arm joints followed by the gripper.
var AllJoints = []JointName{Base, Shoulder, Elbow, Wrist, WristRoll, Gripper}

// JointAngles is a full arm configuration in degrees. Gripper is percent open (0..100) and is
// optional.
type JointAngles struct {
	Base      float64  `json:"base"`
	Shoulder  float64  `json:"shoulder"`
	Elbow     float64  `json:"elbow"`
	Wrist     float64  `json:"wrist"`
	WristRoll float64  `json:"wristRoll"`
	Gripper   *float64 `json:"gripper,omitempty"`
}

// GripperPercent returns a pointer to a gripper opening, for use in JointAngles literals.
func GripperPercent(pct float64) *float64 {
	return &pct
}

// Get returns the value of the named joint. The second return is false for an unknown name or an
// absent gripper value.
func (j JointAngles) Get(name JointName) (float64, bool) {
	switch name {
	case Base:
		return j.Base, true
	case Shoulder:
		return j.Shoulder, true
	case Elbow:
		return j.Elbow, true
	case Wrist:
		return j.Wrist, true
	case WristRoll:
		return j.WristRoll, true
	case Gripper:
		if j.Gripper == nil {
			return 0, false
		}
		return *j.Gripper, true
	default:
		return 0, false
	}
}

// Set returns a copy of j with the named joint set to value.
func (j JointAngles) Set(name JointName, value float64) JointAngles {
	switch name {
	case Base:
		j.Base = value
	case Shoulder:
		j.Shoulder = value
	case Elbow:
		j.Elbow = value
	case Wrist:
		j.Wrist = value
	case WristRoll:
		j.WristRoll = value
	case Gripper:
		j.Gripper = GripperPercent(value)
	}
	return j
}

// WithGripper returns a copy of j with the gripper set to pct.
func (j JointAngles) WithGripper(pct float64) JointAngles {
	return j.Set(Gripper, pct)
}

// Map returns the present joints keyed by name.
func (j JointAngles) Map() map[JointName]float64 {
	m := make(map[JointName]float64, len(AllJoints))
	for _, name := range AllJoints {
		if v, ok := j.Get(name); ok {
			m[name] = v
		}
	}
	return m
}

// Floats returns the five arm joints in chain order.
func (j JointAngles) Floats() []float64 {
	return []float64{j.Base, j.Shoulder, j.Elbow, j.Wrist, j.WristRoll}
}

// Distance is the L2 distance in degrees between the arm joints of two configurations.
func (j JointAngles) Distance(other JointAngles) float64 {
	return floats.Distance(j.Floats(), other.Floats(), 2)
}

func (j JointAngles) String() string {
	s := fmt.Sprintf("base: %.2f shoulder: %.2f elbow: %.2f wrist: %.2f wristRoll: %.2f",
		j.Base, j.Shoulder, j.Elbow, j.Wrist, j.WristRoll)
	if j.Gripper != nil {
		s += fmt.Sprintf(" gripper: %.0f", *j.Gripper)
	}
	return s
}

// CheckLimits returns an error naming every joint of j outside limits.
func (j JointAngles) CheckLimits(limits JointLimits) error {
	return limits.Check(j)
}
