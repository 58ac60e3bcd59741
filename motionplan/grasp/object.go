// Package grasp turns an object description into a five step approach, grasp and lift motion.
//
// Every pose comes from ik solves issued one after another through a Solver, usually the async
// bridge. A target that is hard or impossible to reach never produces an error: the planner runs
// its repair ladder, then falls back to a verified example, and finally returns its best effort
// annotated with a warning. Only solver transport failures and context cancellation are returned.
package grasp

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ObjectType is the shape of the object being picked.
type ObjectType string

// Supported object types.
const (
	Cube     ObjectType = "cube"
	Cylinder ObjectType = "cylinder"
	Ball     ObjectType = "ball"
)

// DefaultScale is the object scale in meters used when none is given.
const DefaultScale = 0.01

// cylinderHeightScale converts a cylinder's scale into its height.
const cylinderHeightScale = 6

// cylinderGraspFraction is how far up from its bottom a cylinder is gripped.
const cylinderGraspFraction = 0.35

// ParseObjectType returns the ObjectType named by s, case insensitive.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(strings.ToLower(strings.TrimSpace(s))); t {
	case Cube, Cylinder, Ball:
		return t, nil
	default:
		return "", errors.Errorf("unknown object type %q, expected cube, cylinder or ball", s)
	}
}

// Object is the thing to pick. Position is the object's center in the caller frame.
type Object struct {
	Position r3.Vector  `json:"position"`
	Type     ObjectType `json:"type"`
	Scale    float64    `json:"scale,omitempty"`
}

func (o Object) String() string {
	return fmt.Sprintf("%s at (%.3f, %.3f, %.3f)", o.Type, o.Position.X, o.Position.Y, o.Position.Z)
}

func (o Object) scale() float64 {
	if o.Scale > 0 {
		return o.Scale
	}
	return DefaultScale
}

// GraspPoint is where the jaw should close: 35% up from the bottom of a cylinder, the center of
// anything else.
func (o Object) GraspPoint() r3.Vector {
	if o.Type != Cylinder {
		return o.Position
	}
	height := cylinderHeightScale * o.scale()
	bottom := o.Position.Y - height/2
	p := o.Position
	p.Y = bottom + cylinderGraspFraction*height
	return p
}
