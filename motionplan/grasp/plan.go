package grasp

import (
	"fmt"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"github.com/robosim/armcore/motionplan/trajectory"
	"github.com/robosim/armcore/referenceframe"
)

// ErrNoSolutionFound names the condition of a plan whose best phase error stays above the retry
// threshold after repairs and fallback. Plan never returns it; GraspPlan.Err does.
var ErrNoSolutionFound = errors.New("no grasp solution within tolerance")

// Wrist roll orientations.
const (
	// WristRollSide closes the fingers horizontally.
	WristRollSide = 0.0
	// WristRollTopDown closes the fingers vertically.
	WristRollTopDown = 90.0
)

// Gripper openings in percent.
const (
	GripperOpen  = 100.0
	GripperClose = 0.0
)

// Source says where a plan's poses came from.
type Source string

// Plan sources.
const (
	SourceNumeric Source = "numeric"
	SourceExample Source = "verified_example"
)

// Step names.
const (
	StepApproach = "approach"
	StepGrasp    = "grasp"
	StepClose    = "close"
	StepHold     = "hold"
	StepLift     = "lift"
)

// PhaseErrors are the ik position errors of the three phases in meters.
type PhaseErrors struct {
	Approach float64 `json:"approach"`
	Grasp    float64 `json:"grasp"`
	Lift     float64 `json:"lift"`
}

// Max returns the largest phase error.
func (e PhaseErrors) Max() float64 {
	return math.Max(e.Approach, math.Max(e.Grasp, e.Lift))
}

// Step is one timed move of the executed sequence. GripperOnly steps keep the arm where it is.
type Step struct {
	Name        string                     `json:"name"`
	Joints      referenceframe.JointAngles `json:"joints"`
	Gripper     float64                    `json:"gripper"`
	GripperOnly bool                       `json:"gripperOnly,omitempty"`
	DurationMs  float64                    `json:"durationMs"`
}

// GraspPlan is a complete pick. The three poses share WristRoll; Steps is always five long.
type GraspPlan struct {
	Object    Object                     `json:"object"`
	Approach  referenceframe.JointAngles `json:"approach"`
	Grasp     referenceframe.JointAngles `json:"grasp"`
	Lift      referenceframe.JointAngles `json:"lift"`
	WristRoll float64                    `json:"wristRoll"`
	// Side is true for a horizontal finger closure.
	Side bool `json:"side"`
	// ApproachDerived is true when the approach was offset from the grasp pose rather than solved.
	ApproachDerived bool `json:"approachDerived"`

	GripperOpen  float64     `json:"gripperOpen"`
	GripperClose float64     `json:"gripperClose"`
	Errors       PhaseErrors `json:"ikErrors"`
	// ExecutedGraspError is the grasp miss with WristRoll applied, which the solver does not see.
	ExecutedGraspError float64 `json:"executedGraspError"`

	// Warning joins Warnings into one human readable line; empty when the plan looks good.
	Warning    string   `json:"warning,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	NoSolution bool     `json:"noSolution,omitempty"`
	Source     Source   `json:"source"`
	// Strategy names the repair strategy that produced the poses, empty for the first attempt.
	Strategy  string    `json:"strategy,omitempty"`
	ExampleID string    `json:"exampleId,omitempty"`
	Steps     []Step    `json:"steps"`
	Meta      *PlanMeta `json:"-"`
}

// MaxError returns the largest phase error.
func (p *GraspPlan) MaxError() float64 {
	return p.Errors.Max()
}

// Err returns ErrNoSolutionFound, with the warning text, when the plan is flagged as unsolved and
// nil otherwise.
func (p *GraspPlan) Err() error {
	if !p.NoSolution {
		return nil
	}
	return errors.Wrap(ErrNoSolutionFound, p.Warning)
}

// buildSteps fills Steps from the three poses and durations in opts.
func (p *GraspPlan) buildSteps(opts *Options) {
	open := p.Grasp.WithGripper(p.GripperOpen)
	closed := p.Grasp.WithGripper(p.GripperClose)
	p.Steps = []Step{
		{Name: StepApproach, Joints: p.Approach.WithGripper(p.GripperOpen), Gripper: p.GripperOpen, DurationMs: opts.ApproachDurationMs},
		{Name: StepGrasp, Joints: open, Gripper: p.GripperOpen, DurationMs: opts.GraspDurationMs},
		{Name: StepClose, Joints: closed, Gripper: p.GripperClose, GripperOnly: true, DurationMs: opts.CloseDurationMs},
		{Name: StepHold, Joints: closed, Gripper: p.GripperClose, DurationMs: opts.HoldDurationMs},
		{Name: StepLift, Joints: p.Lift.WithGripper(p.GripperClose), Gripper: p.GripperClose, DurationMs: opts.LiftDurationMs},
	}
}

// Trajectory converts the steps into validator frames. Each frame is stamped with the time its
// step completes, counted from startMs. Gripper only steps carry just the gripper joint.
func (p *GraspPlan) Trajectory(startMs float64) []trajectory.Frame {
	frames := make([]trajectory.Frame, 0, len(p.Steps))
	t := startMs
	for _, s := range p.Steps {
		t += s.DurationMs
		if s.GripperOnly {
			frames = append(frames, trajectory.Frame{
				TimestampMs: t,
				Joints:      map[referenceframe.JointName]float64{referenceframe.Gripper: s.Gripper},
				GripperOnly: true,
				DurationMs:  s.DurationMs,
			})
			continue
		}
		frames = append(frames, trajectory.NewFrame(t, s.Joints, false, s.DurationMs))
	}
	return frames
}

// Table renders the steps, one row each.
func (p *GraspPlan) Table() string {
	t := table.NewWriter()
	t.SetTitle("%s, source %s, max error %.4f m", p.Object, p.Source, p.MaxError())
	t.AppendHeader(table.Row{"#", "Step", "Base", "Shoulder", "Elbow", "Wrist", "Roll", "Gripper", "ms"})
	for i, s := range p.Steps {
		name := s.Name
		if s.GripperOnly {
			name += " (gripper)"
		}
		t.AppendRow(table.Row{
			i + 1, name,
			fmt.Sprintf("%.2f", s.Joints.Base),
			fmt.Sprintf("%.2f", s.Joints.Shoulder),
			fmt.Sprintf("%.2f", s.Joints.Elbow),
			fmt.Sprintf("%.2f", s.Joints.Wrist),
			fmt.Sprintf("%.0f", s.Joints.WristRoll),
			fmt.Sprintf("%.0f", s.Gripper),
			fmt.Sprintf("%.0f", s.DurationMs),
		})
	}
	t.AppendFooter(table.Row{"", "errors", "", "",
		fmt.Sprintf("approach %.4f", p.Errors.Approach),
		fmt.Sprintf("grasp %.4f", p.Errors.Grasp),
		fmt.Sprintf("lift %.4f", p.Errors.Lift),
		fmt.Sprintf("at roll %.4f", p.ExecutedGraspError), ""})
	if p.Warning != "" {
		t.SetCaption("warning: %s", p.Warning)
	}
	return t.Render()
}
