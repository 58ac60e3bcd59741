// Package kinmath contains the homogeneous transform math used by the kinematic chain.
package kinmath

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a rigid 4x4 homogeneous transform. It is a value type; composing returns a new
// Transform.
type Transform struct {
	Mat mgl64.Mat4
}

// NewTransform returns the identity transform.
func NewTransform() Transform {
	return Transform{mgl64.Ident4()}
}

// NewTransformFromTranslation returns a pure translation.
func NewTransformFromTranslation(x, y, z float64) Transform {
	return Transform{mgl64.Translate3D(x, y, z)}
}

// NewTransformFromRPY returns the fixed-axis roll, pitch, yaw rotation Rz(yaw)*Ry(pitch)*Rx(roll).
// Takes radians.
func NewTransformFromRPY(roll, pitch, yaw float64) Transform {
	return Transform{mgl64.HomogRotate3DZ(yaw).Mul4(
		mgl64.HomogRotate3DY(pitch).Mul4(
			mgl64.HomogRotate3DX(roll)))}
}

// NewTransformFromOrigin is Translation(xyz) followed by RPY(rpy), the URDF joint origin convention.
func NewTransformFromOrigin(xyz, rpy mgl64.Vec3) Transform {
	return NewTransformFromTranslation(xyz[0], xyz[1], xyz[2]).Mul(NewTransformFromRPY(rpy[0], rpy[1], rpy[2]))
}

// NewTransformFromAxisAngle returns a rotation of angle radians about axis. Axis need not be
// normalized.
func NewTransformFromAxisAngle(axis mgl64.Vec3, angle float64) Transform {
	switch axis {
	case mgl64.Vec3{0, 0, 1}:
		return Transform{mgl64.HomogRotate3DZ(angle)}
	case mgl64.Vec3{0, 0, -1}:
		return Transform{mgl64.HomogRotate3DZ(-angle)}
	}
	return Transform{mgl64.HomogRotate3D(angle, axis.Normalize())}
}

// Mul returns m*other, applying other in m's frame.
func (m Transform) Mul(other Transform) Transform {
	return Transform{m.Mat.Mul4(other.Mat)}
}

// Rotation returns the top left 3x3 matrix.
func (m Transform) Rotation() mgl64.Mat3 {
	return m.Mat.Mat3()
}

// Translation returns the XYZ translation parameters.
func (m Transform) Translation() mgl64.Vec3 {
	return m.Mat.Col(3).Vec3()
}

// ApproxEqual compares two transforms elementwise within epsilon.
func (m Transform) ApproxEqual(other Transform, epsilon float64) bool {
	return m.Mat.ApproxEqualThreshold(other.Mat, epsilon)
}
