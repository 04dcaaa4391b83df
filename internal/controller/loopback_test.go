package controller_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hilsim/internal/controller"
	"github.com/banshee-data/hilsim/internal/flightcomputer"
	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/noise"
	"github.com/banshee-data/hilsim/internal/physics"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/timeutil"
	"github.com/banshee-data/hilsim/internal/transport"
)

// tiltedModel holds the vehicle still, pitched about X.
type tiltedModel struct {
	theta float64

	mu     sync.Mutex
	gimbal [2]float64
	calls  int
}

func (m *tiltedModel) State() physics.State {
	return physics.State{Orientation: geom.FromAxisAngle(geom.Vec3{X: 1}, m.theta)}
}

func (m *tiltedModel) Atmosphere(alt float64) physics.Atmosphere {
	return physics.StandardAtmosphere(alt)
}

func (m *tiltedModel) SetGimbal(x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gimbal = [2]float64{x, y}
	m.calls++
}

func (m *tiltedModel) last() ([2]float64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gimbal, m.calls
}

func quietSensors() sensor.Config {
	cfg := sensor.DefaultConfig()
	cfg.AccelBias = geom.Vec3{}
	cfg.AccelNonlinearity = 0
	cfg.GyroBias = geom.Vec3{}
	return cfg
}

func runFormat(t *testing.T, proto protocol.Config) {
	model := &tiltedModel{theta: 0.05}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	host, devPort := transport.Pipe()

	var chuteMu sync.Mutex
	var chutes int
	ctrl, err := controller.New(controller.DefaultConfig(), controller.Deps{
		Model:     model,
		Effector:  model,
		Opener:    transport.FixedOpener{Name: "loopback", Port: host},
		Noise:     noise.Fixed{U: 1},
		Clock:     clock,
		Sensor:    quietSensors(),
		Protocol:  proto,
		Transport: transport.DefaultConfig(),
	}, controller.Callbacks{
		OnParachute: func(protocol.Parachute) {
			chuteMu.Lock()
			chutes++
			chuteMu.Unlock()
		},
	})
	require.NoError(t, err)

	fcCfg := flightcomputer.DefaultConfig()
	fcCfg.Alpha = 1
	fcCfg.Pitch = flightcomputer.Gains{Kp: 1}
	fcCfg.Yaw = flightcomputer.Gains{Kp: 1}
	emu, err := flightcomputer.New(fcCfg, nil)
	require.NoError(t, err)
	emu.Arm()
	codec, err := protocol.New(proto)
	require.NoError(t, err)
	dev, err := flightcomputer.NewDevice(emu, codec, devPort, 1024)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	devDone := make(chan error, 1)
	go func() { devDone <- dev.Run(ctx) }()

	require.NoError(t, ctrl.Connect(ctx))
	ctrl.Start()
	for i := 1; i <= 5; i++ {
		clock.Advance(controller.DefaultConfig().Period())
		want := uint64(i)
		require.Eventually(t, func() bool { return ctrl.Ticks() == want }, 2*time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, n := model.last()
		return n == 5
	}, 2*time.Second, time.Millisecond)
	g, _ := model.last()
	assert.InDelta(t, -0.05, g[0], 2e-3, "gimbal opposes the tilt")
	assert.InDelta(t, 0, g[1], 2e-3)
	assert.Equal(t, uint64(5), ctrl.Status().Stats.PacketsReceived)

	require.NoError(t, dev.Send(emu.DeployChute()))
	require.Eventually(t, func() bool {
		chuteMu.Lock()
		defer chuteMu.Unlock()
		return chutes == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, ctrl.Disconnect())
	devPort.Close()
	assert.False(t, math.IsNaN(emu.Estimate().Pitch))
	assert.InDelta(t, 0.05, emu.Estimate().Pitch, 2e-3)
}

func TestLoopback_Binary(t *testing.T) {
	runFormat(t, protocol.DefaultConfig())
}

func TestLoopback_BinaryBigEndianCRC(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.ByteOrder = protocol.BigEndian
	cfg.Checksum = protocol.ChecksumCRC8
	runFormat(t, cfg)
}

func TestLoopback_Text(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.Format = protocol.FormatText
	cfg.TextChecksum = true
	runFormat(t, cfg)
}
