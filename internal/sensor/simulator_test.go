package sensor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/noise"
	"github.com/banshee-data/hilsim/internal/units"
)

func newSimulator(t *testing.T, cfg Config, gen noise.Generator) *Simulator {
	t.Helper()
	s, err := New(cfg, gen)
	require.NoError(t, err)
	return s
}

// noiseless returns a config with every stochastic term disabled.
func noiseless() Config {
	cfg := DefaultConfig()
	cfg.AccelNoise, cfg.AccelBias, cfg.AccelNonlinearity = 0, geom.Vec3{}, 0
	cfg.GyroNoise, cfg.GyroBias, cfg.GyroDrift = 0, geom.Vec3{}, 0
	cfg.BaroNoise, cfg.BaroDrift, cfg.BaroTempCoeff, cfg.TempNoise = 0, 0, 0, 0
	cfg.MagBias, cfg.MagNoise = geom.Vec3{}, 0
	cfg.GPSHorizontalNoise, cfg.GPSVerticalNoise, cfg.GPSVelocityNoise = 0, 0, 0
	cfg.GPSDropoutProb = 0
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative accel noise", func(c *Config) { c.AccelNoise = -1 }},
		{"zero gps rate", func(c *Config) { c.GPSUpdateRate = 0 }},
		{"dropout above one", func(c *Config) { c.GPSDropoutProb = 1.5 }},
		{"latitude out of range", func(c *Config) { c.OriginLatitude = 91 }},
		{"longitude out of range", func(c *Config) { c.OriginLongitude = -181 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestAccelerometerBiasAndNonlinearity(t *testing.T) {
	cfg := noiseless()
	cfg.AccelBias = geom.Vec3{X: 0.5}
	cfg.AccelNonlinearity = 0.01
	s := newSimulator(t, cfg, noise.Fixed{})

	got := s.SimulateAccelerometer(geom.Vec3{X: 1.5, Y: 9.8, Z: -2})
	assert.InDelta(t, 2*(1+0.01*2), got.X, 1e-12)
	assert.InDelta(t, 9.8*(1+0.01*9.8), got.Y, 1e-12)
	assert.InDelta(t, -2*(1-0.01*2), got.Z, 1e-12)
}

func TestAccelerometerNoiseSpread(t *testing.T) {
	cfg := noiseless()
	cfg.AccelNoise = 0.2
	s := newSimulator(t, cfg, noise.NewSeeded(1))

	xs := make([]float64, 5000)
	for i := range xs {
		xs[i] = s.SimulateAccelerometer(geom.Vec3{}).X
	}
	mean, std := stat.MeanStdDev(xs, nil)
	assert.InDelta(t, 0, mean, 0.02)
	assert.InDelta(t, 0.2, std, 0.02)
}

func TestGyroDriftZeroKeepsAccumulator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GyroDrift = 0
	s := newSimulator(t, cfg, noise.NewSeeded(3))

	initial := s.State().GyroDrift
	for i := 0; i < 10000; i++ {
		s.SimulateGyroscope(geom.Vec3{X: 0.1}, 0.01)
	}
	assert.Equal(t, initial, s.State().GyroDrift)
}

func TestGyroDriftScalesWithSqrtDt(t *testing.T) {
	cfg := noiseless()
	cfg.GyroDrift = 0.01
	s := newSimulator(t, cfg, noise.Fixed{Z: 1})

	s.SimulateGyroscope(geom.Vec3{}, 0.04)
	assert.InDelta(t, 0.01*0.2, s.State().GyroDrift.X, 1e-12)

	got := s.SimulateGyroscope(geom.Vec3{Y: 1}, 0.25)
	assert.InDelta(t, 0.002+0.005, s.State().GyroDrift.Y, 1e-12)
	assert.InDelta(t, 1+0.007, got.Y, 1e-12)
}

func TestBarometerDriftAndTemperature(t *testing.T) {
	cfg := noiseless()
	cfg.BaroDrift = 2
	cfg.BaroTempCoeff = 3
	s := newSimulator(t, cfg, noise.Fixed{Z: 1})

	got := s.SimulateBarometer(100000, units.ReferenceTemperature+10, 0.5)
	// drift 2*0.5 = 1, temperature term 3*10 = 30
	assert.InDelta(t, 100031, got.Pressure, 1e-9)
	assert.InDelta(t, units.ReferenceTemperature+10, got.Temperature, 1e-9)
	assert.InDelta(t, 1, s.State().BaroDrift, 1e-12)

	s.Reset()
	assert.Equal(t, RunningState{}, s.State())
}

func TestMagnetometerIgnoresAttitude(t *testing.T) {
	cfg := noiseless()
	cfg.MagBias = geom.Vec3{X: 1}
	s := newSimulator(t, cfg, noise.Fixed{})

	got := s.SimulateMagnetometer()
	assert.Equal(t, cfg.MagField.Add(cfg.MagBias), got)
}

func TestGPSCadence(t *testing.T) {
	cfg := noiseless()
	cfg.GPSUpdateRate = 5
	s := newSimulator(t, cfg, noise.Fixed{U: 0.5})

	first := s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 1.0)
	require.NotNil(t, first)
	assert.True(t, first.Valid)

	assert.Nil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 1.1), "second call inside 1/rate must be nil")
	assert.Nil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 1.19))
	assert.NotNil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 1.25))
}

func TestGPSCadenceOnTickMultiples(t *testing.T) {
	cfg := noiseless()
	cfg.GPSUpdateRate = 10
	s := newSimulator(t, cfg, noise.Fixed{U: 0.5})

	var epochs []uint32
	for i := range 100 {
		now := time.Duration(i) * 10 * time.Millisecond
		if s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, now.Seconds()) != nil {
			epochs = append(epochs, uint32(now.Milliseconds()))
		}
	}
	assert.Equal(t, []uint32{0, 100, 200, 300, 400, 500, 600, 700, 800, 900}, epochs)
}

func TestGPSDropoutAlways(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GPSDropoutProb = 1.0
	s := newSimulator(t, cfg, noise.NewSeeded(9))

	for i := 0; i < 50; i++ {
		fix := s.SimulateGPS(geom.Vec3{X: 10}, geom.Vec3{}, float64(i))
		require.NotNil(t, fix)
		assert.False(t, fix.Valid)
		assert.Zero(t, fix.Latitude)
		assert.True(t, s.State().LastDropout)
	}
}

func TestGPSPositionAndVelocityConventions(t *testing.T) {
	cfg := noiseless()
	s := newSimulator(t, cfg, noise.Fixed{U: 0.5})

	fix := s.SimulateGPS(geom.Vec3{X: 111, Y: 50, Z: -222}, geom.Vec3{X: 1, Y: 2, Z: 3}, 0)
	require.NotNil(t, fix)
	assert.InDelta(t, cfg.OriginLatitude+0.001, fix.Latitude, 1e-12)
	assert.InDelta(t, cfg.OriginLongitude-0.002, fix.Longitude, 1e-12)
	assert.InDelta(t, cfg.OriginAltitude+50, fix.Altitude, 1e-12)
	assert.Equal(t, 1.0, fix.VelocityN)
	assert.Equal(t, 3.0, fix.VelocityE)
	assert.Equal(t, -2.0, fix.VelocityD)
	assert.Equal(t, 12, fix.Satellites)
	assert.InDelta(t, 0.9, fix.HDOP, 1e-12)
	assert.Equal(t, Fix3D, fix.FixType)
}

func TestSampleBuildsPacket(t *testing.T) {
	s := newSimulator(t, noiseless(), noise.Fixed{U: 0.5})
	in := TrueState{
		Time:          2.5,
		SpecificForce: geom.Vec3{Y: units.StandardGravity},
		AngularRate:   geom.Vec3{Z: 0.1},
		Pressure:      units.SeaLevelPressure,
		Temperature:   units.SeaLevelTemperature,
	}
	p := s.Sample(in, 0.01)
	assert.Equal(t, uint32(2500), p.Timestamp)
	assert.Equal(t, units.StandardGravity, p.Accel.Y)
	assert.Equal(t, 0.1, p.Gyro.Z)
	assert.Equal(t, units.SeaLevelPressure, p.Baro.Pressure)
	assert.True(t, p.HasFix())

	// Next tick is inside the GPS interval.
	in.Time = 2.51
	p = s.Sample(in, 0.01)
	assert.Nil(t, p.GPS)
	assert.False(t, p.HasFix())
}

func TestSampleTimestampWraps(t *testing.T) {
	s := newSimulator(t, noiseless(), noise.Fixed{U: 0.5})

	// 4294968 s is 704 ms past 2^32 ms.
	p := s.Sample(TrueState{Time: 4294968}, 0.01)
	assert.Equal(t, uint32(704), p.Timestamp)

	p = s.Sample(TrueState{Time: -1}, 0.01)
	assert.Zero(t, p.Timestamp)
}

func TestResetClearsGPSEpoch(t *testing.T) {
	s := newSimulator(t, noiseless(), noise.Fixed{U: 0.5})
	require.NotNil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 0))
	require.Nil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 0.01))

	s.Reset()
	assert.NotNil(t, s.SimulateGPS(geom.Vec3{}, geom.Vec3{}, 0.01))
	assert.False(t, math.IsNaN(s.State().LastGPSTime))
}
