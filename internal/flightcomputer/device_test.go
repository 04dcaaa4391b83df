package flightcomputer

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/transport"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// readCommands decodes commands from r until want have arrived.
func readCommands(t *testing.T, r io.Reader, codec protocol.Codec, want int) []protocol.Command {
	t.Helper()
	var (
		buf  []byte
		cmds []protocol.Command
	)
	deadline := time.Now().Add(2 * time.Second)
	chunk := make([]byte, 64)
	for len(cmds) < want {
		require.True(t, time.Now().Before(deadline), "timed out after %d commands", len(cmds))
		n, err := r.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
		for len(buf) > 0 {
			cmd, err := codec.Decode(buf)
			if errors.Is(err, protocol.ErrShortBuffer) {
				break
			}
			require.NoError(t, err)
			cmds = append(cmds, cmd)
			buf = buf[commandLen(cmd):]
		}
	}
	return cmds
}

func commandLen(cmd protocol.Command) int {
	switch cmd.(type) {
	case protocol.Gimbal:
		return 7
	case protocol.StatusRequest:
		return 3
	default:
		return 4
	}
}

type deviceHarness struct {
	dev    *Device
	host   *transport.PipePort
	codec  protocol.FullCodec
	cancel context.CancelFunc
	done   chan error
}

func startDevice(t *testing.T, cfg Config, arm bool) *deviceHarness {
	t.Helper()
	codec, err := protocol.New(protocol.DefaultConfig())
	require.NoError(t, err)
	emu, err := New(cfg, nil)
	require.NoError(t, err)
	if arm {
		emu.Arm()
	}
	host, devPort := transport.Pipe()
	dev, err := NewDevice(emu, codec, devPort, 256)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &deviceHarness{dev: dev, host: host, codec: codec, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- dev.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		host.Close()
	})
	return h
}

func TestNewDevice_Validation(t *testing.T) {
	codec, err := protocol.New(protocol.DefaultConfig())
	require.NoError(t, err)
	emu, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	_, port := transport.Pipe()

	_, err = NewDevice(nil, codec, port, 256)
	assert.Error(t, err)
	_, err = NewDevice(emu, nil, port, 256)
	assert.Error(t, err)
	_, err = NewDevice(emu, codec, nil, 256)
	assert.Error(t, err)
	_, err = NewDevice(emu, codec, port, 10)
	assert.Error(t, err)
}

func TestDevice_RespondsToPackets(t *testing.T) {
	cfg := proportional(1)
	cfg.Alpha = 1
	h := startDevice(t, cfg, true)

	frames := append(h.codec.Encode(tilted(0.05, 0)), h.codec.Encode(tilted(-0.05, 0))...)
	// Split mid-frame to exercise reassembly.
	_, err := h.host.Write(frames[:30])
	require.NoError(t, err)
	_, err = h.host.Write(frames[30:])
	require.NoError(t, err)

	cmds := readCommands(t, h.host, h.codec, 2)
	assert.InDelta(t, -0.05, cmds[0].(protocol.Gimbal).X, 1e-3)
	assert.InDelta(t, 0.05, cmds[1].(protocol.Gimbal).X, 1e-3)

	require.Eventually(t, func() bool { return h.dev.Stats().CommandsSent == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), h.dev.Stats().PacketsReceived)
}

func TestDevice_SkipsGarbage(t *testing.T) {
	cfg := proportional(1)
	cfg.Alpha = 1
	h := startDevice(t, cfg, true)

	_, err := h.host.Write(append([]byte{0x00, 0x13, 0x37}, h.codec.Encode(tilted(0.05, 0))...))
	require.NoError(t, err)

	cmds := readCommands(t, h.host, h.codec, 1)
	assert.InDelta(t, -0.05, cmds[0].(protocol.Gimbal).X, 1e-3)
	assert.Equal(t, uint64(3), h.dev.Stats().DecodeErrors)
}

func TestDevice_DisarmedSendsNothing(t *testing.T) {
	h := startDevice(t, DefaultConfig(), false)
	for range 5 {
		_, err := h.host.Write(h.codec.Encode(tilted(0.05, 0)))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return h.dev.Stats().PacketsReceived == 5 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, h.dev.Stats().CommandsSent)
	assert.InDelta(t, 0.05*(1-math.Pow(0.98, 5)), h.dev.Emulator().Estimate().Pitch, 1e-4)
}

func TestDevice_Send(t *testing.T) {
	h := startDevice(t, DefaultConfig(), false)
	require.NoError(t, h.dev.Send(h.dev.Emulator().DeployChute()))
	cmds := readCommands(t, h.host, h.codec, 1)
	assert.Equal(t, protocol.Parachute{Deploy: true}, cmds[0])

	assert.Error(t, h.dev.Send(nil))
}

func TestDevice_RunEndsOnClose(t *testing.T) {
	h := startDevice(t, DefaultConfig(), false)
	require.NoError(t, h.host.Close())
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the port closed")
	}
	assert.Error(t, h.dev.Send(protocol.StatusRequest{}))
	assert.Equal(t, uint64(1), h.dev.Stats().WriteErrors)
}

func TestDevice_RunEndsOnCancel(t *testing.T) {
	h := startDevice(t, DefaultConfig(), false)
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDevice_DeploysChuteOnDescent(t *testing.T) {
	h := startDevice(t, DefaultConfig(), false)
	h.dev.SetChuteDescentRate(2)

	climbing := tilted(0, 0)
	climbing.GPS = &sensor.GPSReading{Valid: true, VelocityD: -30, FixType: sensor.Fix3D}
	falling := climbing
	falling.GPS = &sensor.GPSReading{Valid: true, VelocityD: 5, FixType: sensor.Fix3D}
	noFix := falling
	noFix.GPS = &sensor.GPSReading{Valid: false}

	for _, p := range []sensor.Packet{climbing, noFix, falling, falling} {
		_, err := h.host.Write(h.codec.Encode(p))
		require.NoError(t, err)
	}

	cmds := readCommands(t, h.host, h.codec, 1)
	assert.Equal(t, protocol.Parachute{Deploy: true}, cmds[0])
	require.Eventually(t, func() bool { return h.dev.Stats().PacketsReceived == 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), h.dev.Stats().CommandsSent, "deploys once")
}
