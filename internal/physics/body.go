package physics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/timeutil"
	"github.com/banshee-data/hilsim/internal/units"
)

// BodyConfig parameterises the reference rigid body.
type BodyConfig struct {
	Mass     float64 `json:"mass" yaml:"mass"`           // kg
	Thrust   float64 `json:"thrust" yaml:"thrust"`       // N along body +Y
	BurnTime float64 `json:"burn_time" yaml:"burn_time"` // s
	// DragArea is Cd·A in m², applied against the velocity.
	DragArea float64 `json:"drag_area" yaml:"drag_area"`
	// ParachuteDragArea replaces DragArea once the parachute is out.
	ParachuteDragArea float64 `json:"parachute_drag_area" yaml:"parachute_drag_area"`
	// GimbalRate maps gimbal angle (rad) to body rate (rad/s): gimbal X
	// drives rotation about body X and gimbal Y about body Z.
	GimbalRate float64 `json:"gimbal_rate" yaml:"gimbal_rate"`
	// GimbalLimit clamps the commanded angles.
	GimbalLimit float64 `json:"gimbal_limit" yaml:"gimbal_limit"`
	// InitialTilt rotates the body about X at launch, radians.
	InitialTilt float64 `json:"initial_tilt" yaml:"initial_tilt"`
	// StepRate is the integration rate for Run, Hz.
	StepRate float64 `json:"step_rate" yaml:"step_rate"`
}

// DefaultBodyConfig returns a small high-power rocket.
func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		Mass:              1.5,
		Thrust:            40,
		BurnTime:          3,
		DragArea:          0.0025,
		ParachuteDragArea: 0.8,
		GimbalRate:        4,
		GimbalLimit:       0.15,
		InitialTilt:       0.05,
		StepRate:          200,
	}
}

// Validate checks the configuration.
func (c BodyConfig) Validate() error {
	if c.Mass <= 0 {
		return fmt.Errorf("mass %g: must be positive", c.Mass)
	}
	if c.Thrust < 0 || c.BurnTime < 0 || c.DragArea < 0 || c.ParachuteDragArea < 0 {
		return fmt.Errorf("thrust, burn time and drag areas must not be negative")
	}
	if c.GimbalLimit <= 0 {
		return fmt.Errorf("gimbal limit %g: must be positive", c.GimbalLimit)
	}
	if c.StepRate <= 0 {
		return fmt.Errorf("step rate %g: must be positive", c.StepRate)
	}
	return nil
}

// Body is a point-mass rocket with attitude. It implements Model and
// Effector and is safe for concurrent use.
type Body struct {
	cfg BodyConfig

	mu        sync.Mutex
	state     State
	gimbal    [2]float64
	parachute bool
}

var (
	_ Model    = (*Body)(nil)
	_ Effector = (*Body)(nil)
)

// NewBody returns a body resting at the origin.
func NewBody(cfg BodyConfig) (*Body, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Body{cfg: cfg}
	b.Reset()
	return b, nil
}

// Reset returns the body to the launch pad.
func (b *Body) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = State{Orientation: geom.FromAxisAngle(geom.Vec3{X: 1}, b.cfg.InitialTilt)}
	b.gimbal = [2]float64{}
	b.parachute = false
}

// State returns a copy of the current state.
func (b *Body) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Atmosphere returns the standard atmosphere.
func (b *Body) Atmosphere(altitude float64) Atmosphere {
	return StandardAtmosphere(altitude)
}

// SetGimbal stores the commanded gimbal angles, clamped to the limit.
func (b *Body) SetGimbal(x, y float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gimbal = [2]float64{clamp(x, b.cfg.GimbalLimit), clamp(y, b.cfg.GimbalLimit)}
}

// Gimbal returns the current gimbal angles.
func (b *Body) Gimbal() (x, y float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gimbal[0], b.gimbal[1]
}

// DeployParachute switches to parachute drag.
func (b *Body) DeployParachute() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parachute = true
}

// Step advances the body by dt seconds with semi-implicit Euler integration.
// The body cannot sink below the ground plane.
func (b *Body) Step(dt float64) {
	if dt <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &b.state
	s.AngularVelocity = geom.Vec3{
		X: b.cfg.GimbalRate * b.gimbal[0],
		Z: b.cfg.GimbalRate * b.gimbal[1],
	}

	force := geom.Vec3{Y: -b.cfg.Mass * units.StandardGravity}
	if s.Time < b.cfg.BurnTime {
		force = force.Add(geom.Rotate(s.Orientation, geom.Vec3{Y: b.cfg.Thrust}))
	}
	area := b.cfg.DragArea
	if b.parachute {
		area = b.cfg.ParachuteDragArea
	}
	if speed := s.Velocity.Norm(); speed > 0 {
		rho := StandardAtmosphere(s.Position.Y).Density
		force = force.Add(s.Velocity.Scale(-0.5 * rho * area * speed))
	}

	s.Velocity = s.Velocity.Add(force.Scale(dt / b.cfg.Mass))
	s.Position = s.Position.Add(s.Velocity.Scale(dt))
	if s.Position.Y < 0 {
		s.Position.Y = 0
		s.Velocity = geom.Vec3{}
	}
	if s.Position.Y > 0 {
		s.Orientation = geom.Integrate(s.Orientation, s.AngularVelocity, dt)
	} else {
		s.AngularVelocity = geom.Vec3{}
	}
	s.Time += dt
}

// Run steps the body at cfg.StepRate until ctx is done.
func (b *Body) Run(ctx context.Context, clock timeutil.Clock) error {
	period := time.Duration(float64(time.Second) / b.cfg.StepRate)
	ticker := clock.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			b.Step(period.Seconds())
		}
	}
}

// Tilt returns the angle between body +Y and world up, radians.
func Tilt(q quat.Number) float64 {
	up := geom.Rotate(q, geom.Vec3{Y: 1})
	return math.Acos(math.Max(-1, math.Min(1, up.Y/up.Norm())))
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
