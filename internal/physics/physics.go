// Package physics defines the interface to the physics engine that drives the
// HIL loop, plus a small rigid-body reference model.
package physics

import (
	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/hilsim/internal/geom"
)

// State is the true kinematic state of the vehicle.
type State struct {
	// Time is seconds since the model started.
	Time float64 `json:"time"`
	// Position and Velocity are world-frame, metres and m/s.
	Position geom.Vec3 `json:"position"`
	Velocity geom.Vec3 `json:"velocity"`
	// Orientation rotates body-frame vectors into the world frame.
	Orientation quat.Number `json:"orientation"`
	// AngularVelocity is the body-frame rate in rad/s.
	AngularVelocity geom.Vec3 `json:"angular_velocity"`
}

// Atmosphere is the ambient air at some altitude.
type Atmosphere struct {
	Pressure    float64 `json:"pressure"`    // Pa
	Temperature float64 `json:"temperature"` // K
	Density     float64 `json:"density"`     // kg/m³
}

// Model is read by the controller every tick.
type Model interface {
	State() State
	Atmosphere(altitude float64) Atmosphere
}

// Effector accepts actuator output from the device under test.
type Effector interface {
	// SetGimbal sets the thrust-vector gimbal angles in radians.
	SetGimbal(x, y float64)
}
