// Package flightcomputer is a reference device under test: a complementary
// filter attitude estimator driving a PID gimbal controller.
package flightcomputer

import (
	"math"
	"sync"

	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
)

// State is the arming state.
type State int

const (
	Disarmed State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "disarmed"
}

// Estimate is the attitude estimate in radians.
type Estimate struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type pid struct {
	gains    Gains
	integral float64
	prevErr  float64
	hasPrev  bool
}

func (p *pid) update(err, dt, integralLimit float64) float64 {
	p.integral = clamp(p.integral+err*dt, integralLimit)
	var deriv float64
	if p.hasPrev {
		deriv = (err - p.prevErr) / dt
	}
	p.prevErr = err
	p.hasPrev = true
	return p.gains.Kp*err + p.gains.Ki*p.integral + p.gains.Kd*deriv
}

func (p *pid) reset() {
	p.integral = 0
	p.prevErr = 0
	p.hasPrev = false
}

// Emulator consumes sensor packets and produces gimbal commands. It is safe
// for concurrent use.
type Emulator struct {
	cfg       Config
	onCommand func(protocol.Command)

	mu     sync.Mutex
	state  State
	est    Estimate
	pitch  pid
	yaw    pid
	output protocol.Gimbal
}

// New returns a disarmed emulator. onCommand, if not nil, receives every
// command ProcessSensorData and DeployChute produce.
func New(cfg Config, onCommand func(protocol.Command)) (*Emulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Emulator{
		cfg:       cfg,
		onCommand: onCommand,
		pitch:     pid{gains: cfg.Pitch},
		yaw:       pid{gains: cfg.Yaw},
	}, nil
}

// ProcessSensorData updates the estimate from p and, when armed, returns the
// next gimbal command. It returns nil while disarmed.
func (e *Emulator) ProcessSensorData(p sensor.Packet) protocol.Command {
	e.mu.Lock()
	dt := e.cfg.SampleInterval
	gyroPitch := e.est.Pitch + p.Gyro.X*dt
	e.est.Yaw += p.Gyro.Z * dt
	accelPitch := math.Atan2(-p.Accel.Z, p.Accel.Y)
	e.est.Pitch = (1-e.cfg.Alpha)*gyroPitch + e.cfg.Alpha*accelPitch

	if e.state != Armed {
		e.mu.Unlock()
		return nil
	}

	limit := e.cfg.OutputLimit
	e.output = protocol.Gimbal{
		X: clamp(e.pitch.update(e.cfg.TargetPitch-e.est.Pitch, dt, e.cfg.IntegralLimit), limit),
		Y: clamp(e.yaw.update(e.cfg.TargetYaw-e.est.Yaw, dt, e.cfg.IntegralLimit), limit),
	}
	cmd := e.output
	e.mu.Unlock()

	e.emit(cmd)
	return cmd
}

// Arm enables the controller and clears the integral terms. Arming an armed
// emulator is a no-op.
func (e *Emulator) Arm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Armed {
		return
	}
	e.state = Armed
	e.pitch.reset()
	e.yaw.reset()
}

// Disarm disables the controller, clearing the integral terms and outputs.
func (e *Emulator) Disarm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Disarmed
	e.pitch.reset()
	e.yaw.reset()
	e.output = protocol.Gimbal{}
}

// DeployChute returns a parachute deployment command in any state.
func (e *Emulator) DeployChute() protocol.Command {
	cmd := protocol.Parachute{Deploy: true}
	e.emit(cmd)
	return cmd
}

// Reset zeroes the estimator and controller and disarms.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Disarmed
	e.est = Estimate{}
	e.pitch.reset()
	e.yaw.reset()
	e.output = protocol.Gimbal{}
}

// State returns the arming state.
func (e *Emulator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Estimate returns the current attitude estimate.
func (e *Emulator) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.est
}

// Output returns the last gimbal command.
func (e *Emulator) Output() protocol.Gimbal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.output
}

func (e *Emulator) emit(cmd protocol.Command) {
	if e.onCommand != nil {
		e.onCommand(cmd)
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
