// Package kinematics implements forward kinematics for the arm: joint angles in, jaw contact point
// out.
//
// The chain is a list of rigid links, each Translation(xyz)*RPY(roll, pitch, yaw) followed by a
// rotation of its joint angle about the link's local axis. The last link is the fixed gripper frame
// and is followed by the jaw center offset. The chain is expressed Z-up; Position remaps its
// translation (x, y, z) to the caller's Y-up frame as (x, z, -y).
package kinematics

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/robosim/armcore/kinematics/kinmath"
	"github.com/robosim/armcore/referenceframe"
	"github.com/robosim/armcore/utils"
)

// Kinematics computes the jaw contact position for a configuration.
type Kinematics interface {
	Position(j referenceframe.JointAngles) r3.Vector
}

type link struct {
	origin kinmath.Transform
	joint  referenceframe.JointName
	axis   mgl64.Vec3
}

// Chain is an immutable kinematic chain. It is safe for concurrent use.
type Chain struct {
	name   string
	links  []link
	jaw    kinmath.Transform
	limits referenceframe.JointLimits
}

// Name returns the name of the chain.
func (c *Chain) Name() string {
	return c.name
}

// Limits returns the joint limits inputs are clamped to before composing.
func (c *Chain) Limits() referenceframe.JointLimits {
	return c.limits
}

// WithLimits returns a copy of the chain that clamps against limits.
func (c *Chain) WithLimits(limits referenceframe.JointLimits) *Chain {
	cp := *c
	cp.limits = limits
	return &cp
}

// Transform returns the full jaw contact frame in the chain's native Z-up frame. Joint values are
// clamped to the chain's limits first.
func (c *Chain) Transform(j referenceframe.JointAngles) kinmath.Transform {
	j = c.Limits().Clamp(j)
	out := kinmath.NewTransform()
	for _, l := range c.links {
		out = out.Mul(l.origin)
		if l.joint == "" {
			continue
		}
		q, _ := j.Get(l.joint)
		out = out.Mul(kinmath.NewTransformFromAxisAngle(l.axis, utils.DegToRad(q)))
	}
	return out.Mul(c.jaw)
}

// Position returns the jaw contact point in the caller frame, meters.
func (c *Chain) Position(j referenceframe.JointAngles) r3.Vector {
	return toCallerFrame(c.Transform(j).Translation())
}

func toCallerFrame(v mgl64.Vec3) r3.Vector {
	return r3.Vector{X: v[0], Y: v[2], Z: -v[1]}
}
