// Package controller runs the host side of the HIL loop: it samples the
// physics model at a fixed rate, streams simulated sensor packets to the
// device under test and dispatches the actuator commands it sends back.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/noise"
	"github.com/banshee-data/hilsim/internal/physics"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/timeutil"
	"github.com/banshee-data/hilsim/internal/transport"
	"github.com/banshee-data/hilsim/internal/units"
)

// ErrNoModel is returned by New when Deps.Model is nil.
var ErrNoModel = errors.New("controller: physics model is required")

// Deps are the collaborators and component configs of a Controller.
type Deps struct {
	Model physics.Model
	// Effector receives gimbal commands. May be nil.
	Effector physics.Effector
	// Opener opens the link to the device. A nil opener makes Connect fail
	// with transport.ErrTransportUnavailable.
	Opener transport.Opener
	// Noise drives the sensor models. Nil selects an unseeded generator.
	Noise noise.Generator
	// Clock defaults to the wall clock.
	Clock timeutil.Clock

	Sensor    sensor.Config
	Protocol  protocol.Config
	Transport transport.Config
}

// Callbacks receive controller events. Any of them may be nil. Command
// callbacks run on the transport receive goroutine and telemetry on the tick
// goroutine; none may block or call Stop or Disconnect.
type Callbacks struct {
	OnActuatorCommand func(protocol.Command)
	OnGimbal          func(protocol.Gimbal)
	OnParachute       func(protocol.Parachute)
	OnStatusUpdate    func(Status)
	OnError           func(error)
	OnTelemetry       func(Telemetry)
}

// Telemetry is emitted once per tick.
type Telemetry struct {
	Packet sensor.Packet   `json:"packet"`
	Stats  transport.Stats `json:"stats"`
	State  physics.State   `json:"state"`
}

// StatusConfig is the configuration echoed in Status.
type StatusConfig struct {
	UpdateRate float64               `json:"update_rate"`
	Format     protocol.Format       `json:"format"`
	Path       string                `json:"path"`
	Options    transport.PortOptions `json:"options"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	Connected bool            `json:"connected"`
	Running   bool            `json:"running"`
	SessionID string          `json:"session_id"`
	Ticks     uint64          `json:"ticks"`
	Stats     transport.Stats `json:"stats"`
	Config    StatusConfig    `json:"config"`
}

// Controller owns the sensor simulator, the codec and the transport session.
type Controller struct {
	cfg     Config
	deps    Deps
	cb      Callbacks
	clock   timeutil.Clock
	sim     *sensor.Simulator
	codec   protocol.Codec
	session *transport.Session
	gravity geom.Vec3

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// Tick state, owned by the tick goroutine while running.
	started time.Time
	last    time.Time
	lastVel geom.Vec3
	tickMu  sync.Mutex
	ticks   uint64

	subsMu sync.Mutex
	subs   map[string]chan Telemetry
}

// New builds a stopped, disconnected controller.
func New(cfg Config, deps Deps, cb Callbacks) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Model == nil {
		return nil, ErrNoModel
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}

	sim, err := sensor.New(deps.Sensor, deps.Noise)
	if err != nil {
		return nil, fmt.Errorf("sensor config: %w", err)
	}
	codec, err := protocol.New(deps.Protocol)
	if err != nil {
		return nil, fmt.Errorf("protocol config: %w", err)
	}

	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		cb:      cb,
		clock:   deps.Clock,
		sim:     sim,
		codec:   codec,
		gravity: geom.Vec3{Y: units.StandardGravity},
		subs:    make(map[string]chan Telemetry),
	}
	c.session, err = transport.NewSession(deps.Transport, deps.Opener, codec, transport.Handlers{
		OnCommand: c.dispatch,
		OnError:   c.reportError,
		OnStatus:  func(transport.Status) { c.reportStatus() },
	}, transport.WithClock(deps.Clock))
	if err != nil {
		return nil, fmt.Errorf("transport config: %w", err)
	}
	return c, nil
}

// Session exposes the underlying transport session.
func (c *Controller) Session() *transport.Session { return c.session }

// Connect opens the link to the device.
func (c *Controller) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Disconnect stops the loop and closes the link.
func (c *Controller) Disconnect() error {
	c.Stop()
	return c.session.Disconnect()
}

// Start resets the sensor running state and begins ticking at the update
// rate. Starting a running controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}

	c.sim.Reset()
	c.started = c.clock.Now()
	c.last = c.started
	c.lastVel = geom.Vec3{}
	c.tickMu.Lock()
	c.ticks = 0
	c.tickMu.Unlock()

	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	timer := c.clock.NewTimer(c.cfg.Period())
	go c.loop(timer, c.stop, c.done)
	c.mu.Unlock()

	monitoring.Logf("controller: started at %g Hz", c.cfg.UpdateRate)
	c.reportStatus()
}

// Stop cancels the scheduled tick and waits for an in-flight tick to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	monitoring.Logf("controller: stopped after %d ticks", c.Ticks())
	c.reportStatus()
}

// Running reports whether the tick loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Ticks returns the number of ticks since the last Start.
func (c *Controller) Ticks() uint64 {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.ticks
}

// loop is a self-rescheduling timer: the next tick is armed as soon as the
// current one fires, so a slow tick delays the schedule instead of queueing.
func (c *Controller) loop(timer timeutil.Timer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer timer.Stop()
	period := c.cfg.Period()
	for {
		select {
		case <-stop:
			return
		case <-timer.C():
			timer.Reset(period)
			c.tick()
		}
	}
}

// tick samples the model once. dt is the measured time since the previous
// tick. World acceleration is taken as the velocity change over dt; this is
// wrong on the first tick and yields Inf or NaN if dt is zero.
func (c *Controller) tick() {
	now := c.clock.Now()
	dt := now.Sub(c.last).Seconds()
	c.last = now

	st := c.deps.Model.State()
	atm := c.deps.Model.Atmosphere(st.Position.Y)

	accel := st.Velocity.Sub(c.lastVel).Scale(1 / dt)
	c.lastVel = st.Velocity

	q := st.Orientation
	if q == (quat.Number{}) {
		q = geom.Identity
	}
	specific := geom.RotateInverse(q, accel.Add(c.gravity))

	pkt := c.sim.Sample(sensor.TrueState{
		Time:          now.Sub(c.started).Seconds(),
		SpecificForce: specific,
		AngularRate:   st.AngularVelocity,
		Position:      st.Position,
		Velocity:      st.Velocity,
		Pressure:      atm.Pressure,
		Temperature:   atm.Temperature,
	}, dt)

	c.tickMu.Lock()
	c.ticks++
	c.tickMu.Unlock()

	// Write failures are reported by the session and never stop the loop.
	_ = c.SendSensorData(pkt)

	tel := Telemetry{Packet: pkt, Stats: c.session.Stats(), State: st}
	if c.cb.OnTelemetry != nil {
		c.cb.OnTelemetry(tel)
	}
	c.publish(tel)
}

// SendSensorData encodes p and writes it to the device.
func (c *Controller) SendSensorData(p sensor.Packet) error {
	return c.session.Write(c.codec.Encode(p))
}

// SendRaw writes b to the device unmodified.
func (c *Controller) SendRaw(b []byte) error {
	return c.session.Write(b)
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	ts := c.session.Status()
	return Status{
		Connected: ts.Connected,
		Running:   c.Running(),
		SessionID: ts.SessionID,
		Ticks:     c.Ticks(),
		Stats:     ts.Stats,
		Config: StatusConfig{
			UpdateRate: c.cfg.UpdateRate,
			Format:     c.deps.Protocol.Format,
			Path:       ts.Path,
			Options:    ts.Options,
		},
	}
}

// dispatch routes a decoded command. Parachute commands reach only the
// callback, and ignition commands are logged and otherwise ignored.
func (c *Controller) dispatch(cmd protocol.Command) {
	if c.cb.OnActuatorCommand != nil {
		c.cb.OnActuatorCommand(cmd)
	}
	switch v := cmd.(type) {
	case protocol.Gimbal:
		if c.deps.Effector != nil {
			c.deps.Effector.SetGimbal(v.X, v.Y)
		}
		if c.cb.OnGimbal != nil {
			c.cb.OnGimbal(v)
		}
	case protocol.Parachute:
		if v.Deploy && c.cb.OnParachute != nil {
			c.cb.OnParachute(v)
		}
	case protocol.Ignition:
		monitoring.Logf("controller: ignition command (arm=%t) not handled", v.Arm)
	case protocol.StatusRequest:
		c.reportStatus()
	}
}

func (c *Controller) reportError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Controller) reportStatus() {
	if c.cb.OnStatusUpdate != nil {
		c.cb.OnStatusUpdate(c.Status())
	}
}

// Subscribe registers a telemetry listener. The returned channel is closed by
// Unsubscribe.
func (c *Controller) Subscribe() (string, <-chan Telemetry) {
	id := uuid.NewString()
	ch := make(chan Telemetry, c.cfg.TelemetryBuffer)
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a telemetry listener.
func (c *Controller) Unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) publish(tel Telemetry) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- tel:
		default:
		}
	}
}
