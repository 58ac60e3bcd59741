// Package spatialmath holds Cartesian helpers for the arm's caller frame: meters, robot base at the
// origin, X forward, Y up and Z lateral.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/robosim/armcore/utils"
)

// NewVec3 is shorthand for an r3.Vector literal.
func NewVec3(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Radial is the horizontal distance of p from the base rotation axis.
func Radial(p r3.Vector) float64 {
	return math.Hypot(p.X, p.Z)
}

// HorizontalDistance is the distance between a and b ignoring height.
func HorizontalDistance(a, b r3.Vector) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// BaseAngleDeg is the base rotation in degrees that points the arm's plane at p.
func BaseAngleDeg(p r3.Vector) float64 {
	return utils.RadToDeg(math.Atan2(p.Z, p.X))
}

// Raise returns p moved up by dy.
func Raise(p r3.Vector, dy float64) r3.Vector {
	p.Y += dy
	return p
}

// ClampRadial pulls p toward the base axis so that its radial distance is at most maxReach, keeping
// its height and bearing. The second return reports whether p was moved.
func ClampRadial(p r3.Vector, maxReach float64) (r3.Vector, bool) {
	r := Radial(p)
	if maxReach <= 0 || r <= maxReach {
		return p, false
	}
	scale := maxReach / r
	return r3.Vector{X: p.X * scale, Y: p.Y, Z: p.Z * scale}, true
}
