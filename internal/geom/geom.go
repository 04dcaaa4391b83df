// Package geom holds the small vector and quaternion helpers shared by the
// physics model, the sensor simulator and the controller.
//
// Frames follow the simulation convention: +X north, +Y up, +Z east. An
// orientation quaternion rotates body-frame vectors into the world frame.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Vec3 is a 3-component vector.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// Rotate rotates body-frame vector v into the world frame using q.
func Rotate(q quat.Number, v Vec3) Vec3 {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Inv(q))
	return Vec3{r.Imag, r.Jmag, r.Kmag}
}

// RotateInverse rotates world-frame vector v into the body frame, i.e. it
// applies the inverse of q.
func RotateInverse(q quat.Number, v Vec3) Vec3 {
	return Rotate(quat.Inv(q), v)
}

// FromAxisAngle returns the unit quaternion rotating by angle radians about axis.
func FromAxisAngle(axis Vec3, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Integrate advances orientation q by body angular rate w (rad/s) over dt
// seconds and renormalises the result.
func Integrate(q quat.Number, w Vec3, dt float64) quat.Number {
	angle := w.Norm() * dt
	if angle == 0 {
		return q
	}
	return Normalise(quat.Mul(q, FromAxisAngle(w, angle)))
}

// Normalise scales q to unit length. A zero quaternion becomes Identity.
func Normalise(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}
