// Package sensor turns true physical state into noisy per-sensor readings.
//
// Each sensor family is modelled independently: fixed bias plus Gaussian
// noise, with random-walk drift for the gyroscope and barometer, a
// multiplicative nonlinearity for the accelerometer, and rate limiting plus
// dropout for GPS. Drift accumulators advance with the caller-supplied dt so
// ticks that run late drift by the right amount.
package sensor

import (
	"fmt"
	"math"

	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/noise"
	"github.com/banshee-data/hilsim/internal/units"
)

// RunningState holds the accumulators that persist between samples.
type RunningState struct {
	GyroDrift   geom.Vec3 // accumulated gyro bias random walk, rad/s
	BaroDrift   float64   // accumulated barometer drift, Pa
	LastGPSTime float64   // time of the last GPS epoch, s
	HasGPSEpoch bool      // false until the first epoch is emitted
	LastDropout bool      // whether the last epoch was a dropout
}

// Simulator produces sensor readings. It is owned by a single goroutine.
type Simulator struct {
	cfg   Config
	noise noise.Generator
	state RunningState
}

// New returns a Simulator using cfg. A nil gen uses an unseeded Box–Muller
// generator.
func New(cfg Config, gen noise.Generator) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil {
		gen = noise.NewBoxMuller(nil)
	}
	return &Simulator{cfg: cfg, noise: gen}, nil
}

// Config returns the configuration the simulator was built with.
func (s *Simulator) Config() Config {
	return s.cfg
}

// State returns a copy of the running state.
func (s *Simulator) State() RunningState {
	return s.state
}

// Reset zeroes every running-state accumulator.
func (s *Simulator) Reset() {
	s.state = RunningState{}
}

func (s *Simulator) gaussVec(sigma float64) geom.Vec3 {
	return geom.Vec3{
		X: s.noise.Gaussian(sigma),
		Y: s.noise.Gaussian(sigma),
		Z: s.noise.Gaussian(sigma),
	}
}

// SimulateAccelerometer returns the measured specific force for the true
// body-frame specific force a.
func (s *Simulator) SimulateAccelerometer(a geom.Vec3) geom.Vec3 {
	v := a.Add(s.cfg.AccelBias).Add(s.gaussVec(s.cfg.AccelNoise))
	k := s.cfg.AccelNonlinearity
	return geom.Vec3{
		X: v.X * (1 + k*v.X),
		Y: v.Y * (1 + k*v.Y),
		Z: v.Z * (1 + k*v.Z),
	}
}

// SimulateGyroscope returns the measured angular rate for the true body rate
// w, advancing the bias random walk by dt seconds.
func (s *Simulator) SimulateGyroscope(w geom.Vec3, dt float64) geom.Vec3 {
	step := s.cfg.GyroDrift * math.Sqrt(math.Max(dt, 0))
	s.state.GyroDrift = s.state.GyroDrift.Add(s.gaussVec(step))
	return w.Add(s.cfg.GyroBias).Add(s.state.GyroDrift).Add(s.gaussVec(s.cfg.GyroNoise))
}

// SimulateBarometer returns the measured pressure and temperature, advancing
// the pressure drift by dt seconds.
func (s *Simulator) SimulateBarometer(pressure, temperature, dt float64) BaroReading {
	s.state.BaroDrift += s.noise.Gaussian(s.cfg.BaroDrift * math.Max(dt, 0))
	tempTerm := s.cfg.BaroTempCoeff * (temperature - units.ReferenceTemperature)
	return BaroReading{
		Pressure:    pressure + s.state.BaroDrift + tempTerm + s.noise.Gaussian(s.cfg.BaroNoise),
		Temperature: temperature + s.noise.Gaussian(s.cfg.TempNoise),
	}
}

// SimulateMagnetometer returns the nominal field plus bias and noise. The
// field is not rotated into the body frame.
func (s *Simulator) SimulateMagnetometer() geom.Vec3 {
	return s.cfg.MagField.Add(s.cfg.MagBias).Add(s.gaussVec(s.cfg.MagNoise))
}

// gpsEpochTolerance absorbs float rounding when an exact GPS interval has
// elapsed between two tick times, seconds.
const gpsEpochTolerance = 1e-9

// SimulateGPS returns a GPS epoch for the given world position and velocity
// at time t (seconds), or nil if less than 1/GPSUpdateRate seconds have
// passed since the previous epoch. A drawn dropout yields {Valid: false}.
func (s *Simulator) SimulateGPS(position, velocity geom.Vec3, t float64) *GPSReading {
	interval := 1 / s.cfg.GPSUpdateRate
	if s.state.HasGPSEpoch && t-s.state.LastGPSTime < interval-gpsEpochTolerance {
		return nil
	}
	s.state.HasGPSEpoch = true
	s.state.LastGPSTime = t

	if s.noise.Float64() < s.cfg.GPSDropoutProb {
		s.state.LastDropout = true
		return &GPSReading{Valid: false}
	}
	s.state.LastDropout = false

	h := s.cfg.GPSHorizontalNoise
	north := position.X + s.noise.Gaussian(h)
	east := position.Z + s.noise.Gaussian(h)
	vn := s.cfg.GPSVelocityNoise

	sats := 12 + int(math.Round(s.noise.Gaussian(1.5)))
	sats = max(4, min(sats, 20))

	return &GPSReading{
		Valid:      true,
		Latitude:   s.cfg.OriginLatitude + units.MetersToDegrees(north),
		Longitude:  s.cfg.OriginLongitude + units.MetersToDegrees(east),
		Altitude:   s.cfg.OriginAltitude + position.Y + s.noise.Gaussian(s.cfg.GPSVerticalNoise),
		VelocityN:  velocity.X + s.noise.Gaussian(vn),
		VelocityE:  velocity.Z + s.noise.Gaussian(vn),
		VelocityD:  -velocity.Y + s.noise.Gaussian(vn),
		Satellites: sats,
		HDOP:       0.9 + math.Abs(s.noise.Gaussian(0.1)),
		FixType:    Fix3D,
	}
}

// Sample builds a complete packet from the true state, dt seconds after the
// previous sample.
func (s *Simulator) Sample(in TrueState, dt float64) Packet {
	return Packet{
		Timestamp: timestampMillis(in.Time),
		Accel:     s.SimulateAccelerometer(in.SpecificForce),
		Gyro:      s.SimulateGyroscope(in.AngularRate, dt),
		Baro:      s.SimulateBarometer(in.Pressure, in.Temperature, dt),
		Mag:       s.SimulateMagnetometer(),
		GPS:       s.SimulateGPS(in.Position, in.Velocity, in.Time),
	}
}

// timestampMillis converts t seconds to milliseconds, wrapping at 32 bits.
// Negative times clamp to zero.
func timestampMillis(t float64) uint32 {
	return uint32(uint64(math.Max(t, 0) * 1000))
}

func (r RunningState) String() string {
	return fmt.Sprintf("gyro_drift=(%.6f,%.6f,%.6f) baro_drift=%.3f last_gps=%.3f dropout=%t",
		r.GyroDrift.X, r.GyroDrift.Y, r.GyroDrift.Z, r.BaroDrift, r.LastGPSTime, r.LastDropout)
}
