// Package trajectory checks joint angle timelines against the arm's hardware limits.
package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/robosim/armcore/referenceframe"
)

// Frame is one timed waypoint. Joints may be partial; a joint absent from a frame is not checked
// in that frame or in the pairs it belongs to.
type Frame struct {
	TimestampMs float64                              `json:"timestamp_ms"`
	Joints      map[referenceframe.JointName]float64 `json:"joints"`
	GripperOnly bool                                 `json:"gripper_only,omitempty"`
	DurationMs  float64                              `json:"duration_ms,omitempty"`
}

// NewFrame builds a frame from a full configuration.
func NewFrame(timestampMs float64, joints referenceframe.JointAngles, gripperOnly bool, durationMs float64) Frame {
	return Frame{TimestampMs: timestampMs, Joints: joints.Map(), GripperOnly: gripperOnly, DurationMs: durationMs}
}

// IssueCode classifies a finding.
type IssueCode string

// Issue codes.
const (
	CodeJointLimit    IssueCode = "joint_limit"
	CodeNearLimit     IssueCode = "near_limit"
	CodeVelocity      IssueCode = "velocity"
	CodeAcceleration  IssueCode = "acceleration"
	CodeGripperTiming IssueCode = "gripper_timing"
	CodeNoLift        IssueCode = "no_lift"
	CodeTiming        IssueCode = "timing"
)

// Issue is one error or warning. Frame is the index of the frame it was found at, or of the second
// frame of a pair.
type Issue struct {
	Code    IssueCode                `json:"code"`
	Frame   int                      `json:"frame"`
	Joint   referenceframe.JointName `json:"joint,omitempty"`
	Value   float64                  `json:"value,omitempty"`
	Message string                   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] frame %d: %s", i.Code, i.Frame, i.Message)
}

// Stats summarizes a trajectory.
type Stats struct {
	FrameCount      int                                  `json:"frame_count"`
	DurationMs      float64                              `json:"duration_ms"`
	MaxVelocity     map[referenceframe.JointName]float64 `json:"max_velocity"`
	MaxAcceleration map[referenceframe.JointName]float64 `json:"max_acceleration"`
}

// Result is the outcome of Validate. Valid is true when there are no errors.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Stats    Stats   `json:"stats"`
}

// HasError reports whether any error carries code.
func (r *Result) HasError(code IssueCode) bool {
	return hasCode(r.Errors, code)
}

// HasWarning reports whether any warning carries code.
func (r *Result) HasWarning(code IssueCode) bool {
	return hasCode(r.Warnings, code)
}

func hasCode(issues []Issue, code IssueCode) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

type validator struct {
	c   Constraints
	res *Result
}

func (v *validator) errorf(code IssueCode, frame int, joint referenceframe.JointName, value float64, format string, args ...interface{}) {
	v.res.Errors = append(v.res.Errors, Issue{Code: code, Frame: frame, Joint: joint, Value: value, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(code IssueCode, frame int, joint referenceframe.JointName, value float64, format string, args ...interface{}) {
	v.res.Warnings = append(v.res.Warnings, Issue{Code: code, Frame: frame, Joint: joint, Value: value, Message: fmt.Sprintf(format, args...)})
}

// Validate checks frames against c and aggregates every finding. It never stops at the first
// error and never fails.
func Validate(frames []Frame, c Constraints) *Result {
	v := &validator{
		c: c,
		res: &Result{
			Errors:   []Issue{},
			Warnings: []Issue{},
			Stats: Stats{
				FrameCount:      len(frames),
				MaxVelocity:     map[referenceframe.JointName]float64{},
				MaxAcceleration: map[referenceframe.JointName]float64{},
			},
		},
	}
	if len(frames) > 1 {
		v.res.Stats.DurationMs = frames[len(frames)-1].TimestampMs - frames[0].TimestampMs
	}
	for i, f := range frames {
		v.checkLimits(i, f)
	}
	v.checkRates(frames)
	v.checkGripper(frames)
	v.res.Valid = len(v.res.Errors) == 0
	return v.res
}

func (v *validator) checkLimits(i int, f Frame) {
	for _, name := range referenceframe.AllJoints {
		val, ok := f.Joints[name]
		if !ok {
			continue
		}
		l, ok := v.c.Limits.Limit(name)
		if !ok {
			continue
		}
		if !l.Contains(val) {
			v.errorf(CodeJointLimit, i, name, val, "%s at %.2f outside [%.1f, %.1f]", name, val, l.Min, l.Max)
			continue
		}
		if name != referenceframe.Gripper && l.Margin(val) < v.c.NearLimitMargin {
			v.warnf(CodeNearLimit, i, name, val, "%s at %.2f within %.1f deg of its limit", name, val, v.c.NearLimitMargin)
		}
	}
}

func (v *validator) checkRates(frames []Frame) {
	// prevVel holds the velocities of the previous pair; it is reset across a bad timestamp.
	prevVel := map[referenceframe.JointName]float64{}
	for i := 1; i < len(frames); i++ {
		a, b := frames[i-1], frames[i]
		dt := (b.TimestampMs - a.TimestampMs) / 1000
		if dt <= 0 {
			v.errorf(CodeTiming, i, "", dt*1000, "timestamp %.1f ms does not advance past %.1f ms", b.TimestampMs, a.TimestampMs)
			prevVel = map[referenceframe.JointName]float64{}
			continue
		}
		names, from, to := sharedArmJoints(a, b)
		delta := make([]float64, len(names))
		floats.SubTo(delta, to, from)
		floats.Scale(1/dt, delta)
		vel := map[referenceframe.JointName]float64{}
		for k, name := range names {
			speed := math.Abs(delta[k])
			vel[name] = speed
			if speed > v.res.Stats.MaxVelocity[name] {
				v.res.Stats.MaxVelocity[name] = speed
			}
			if limit := v.c.MaxVelocity[name]; limit > 0 {
				switch {
				case speed > velocityErrorFactor*limit:
					v.errorf(CodeVelocity, i, name, speed, "%s moves at %.1f deg/s, limit %.1f", name, speed, limit)
				case speed > velocityWarningFactor*limit:
					v.warnf(CodeVelocity, i, name, speed, "%s moves at %.1f deg/s, close to limit %.1f", name, speed, limit)
				}
			}

			prev, ok := prevVel[name]
			if !ok {
				continue
			}
			accel := math.Abs(speed-prev) / dt
			if accel > v.res.Stats.MaxAcceleration[name] {
				v.res.Stats.MaxAcceleration[name] = accel
			}
			if limit := v.c.MaxAcceleration[name]; limit > 0 && accel > accelerationErrorFactor*limit {
				v.errorf(CodeAcceleration, i, name, accel, "%s accelerates at %.1f deg/s^2, limit %.1f", name, accel, limit)
			}
		}
		prevVel = vel
	}
}

// sharedArmJoints returns the arm joints present in both frames with their values in each.
func sharedArmJoints(a, b Frame) ([]referenceframe.JointName, []float64, []float64) {
	var (
		names    []referenceframe.JointName
		from, to []float64
	)
	for _, name := range referenceframe.ArmJoints {
		va, okA := a.Joints[name]
		vb, okB := b.Joints[name]
		if !okA || !okB {
			continue
		}
		names = append(names, name)
		from = append(from, va)
		to = append(to, vb)
	}
	return names, from, to
}

// checkGripper flags open to closed transitions that are too fast when gripper only, and closes
// that are never followed by a lift.
func (v *validator) checkGripper(frames []Frame) {
	var (
		lastGripper  float64
		haveGripper  bool
		lastShoulder float64
		haveShoulder bool
	)
	type closeEvent struct {
		frame    int
		shoulder float64
		known    bool
	}
	var closes []closeEvent

	for i, f := range frames {
		if s, ok := f.Joints[referenceframe.Shoulder]; ok {
			lastShoulder, haveShoulder = s, true
		}
		g, ok := f.Joints[referenceframe.Gripper]
		if !ok {
			continue
		}
		if haveGripper && lastGripper > gripperOpenAbove && g < gripperClosedBelow {
			closes = append(closes, closeEvent{frame: i, shoulder: lastShoulder, known: haveShoulder})
			if f.GripperOnly {
				duration := f.DurationMs
				if duration <= 0 && i > 0 {
					duration = f.TimestampMs - frames[i-1].TimestampMs
				}
				if duration < v.c.MinGripperCloseMs {
					v.errorf(CodeGripperTiming, i, referenceframe.Gripper, duration,
						"gripper closes in %.0f ms, needs at least %.0f ms", duration, v.c.MinGripperCloseMs)
				}
			}
		}
		lastGripper, haveGripper = g, true
	}

	for _, ev := range closes {
		lifted := false
		for j := ev.frame + 1; j < len(frames) && ev.known; j++ {
			if s, ok := frames[j].Joints[referenceframe.Shoulder]; ok && ev.shoulder-s > v.c.LiftShoulderDrop {
				lifted = true
				break
			}
		}
		if !lifted {
			v.warnf(CodeNoLift, ev.frame, referenceframe.Shoulder, 0,
				"gripper closes without a later shoulder lift of more than %.0f deg", v.c.LiftShoulderDrop)
		}
	}
}
