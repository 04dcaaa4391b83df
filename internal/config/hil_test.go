package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hilsim/internal/controller"
	"github.com/banshee-data/hilsim/internal/flightcomputer"
	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/physics"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEmptyConfigUsesComponentDefaults(t *testing.T) {
	cfg := Empty()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, controller.DefaultConfig(), cfg.ControllerConfig())
	assert.Equal(t, protocol.DefaultConfig(), cfg.CodecConfig())
	assert.Equal(t, transport.DefaultConfig(), cfg.TransportConfig())
	assert.Equal(t, sensor.DefaultConfig(), cfg.SensorConfig())
	assert.Equal(t, flightcomputer.DefaultConfig(), cfg.FlightComputerConfig())
	assert.Equal(t, physics.DefaultBodyConfig(), cfg.BodyConfig())
	assert.Equal(t, "", cfg.GetPath())
	assert.Equal(t, protocol.FormatBinary, cfg.GetFormat())
}

// The defaults file must agree with the compiled-in defaults.
func TestDefaultsFileMatchesComponentDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := Empty()

	checks := []struct {
		name      string
		got, want any
	}{
		{"controller", cfg.ControllerConfig(), empty.ControllerConfig()},
		{"protocol", cfg.CodecConfig(), empty.CodecConfig()},
		{"transport", cfg.TransportConfig(), empty.TransportConfig()},
		{"sensor", cfg.SensorConfig(), empty.SensorConfig()},
		{"flight_computer", cfg.FlightComputerConfig(), empty.FlightComputerConfig()},
		{"body", cfg.BodyConfig(), empty.BodyConfig()},
	}
	for _, c := range checks {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "hil.json", `{
  "controller": {"update_rate": 250},
  "protocol": {"format": "TEXT", "checksum": "crc8", "delimiter": "\r\n", "text_checksum": true},
  "transport": {"path": "/dev/ttyACM0", "baud_rate": 921600, "parity": "E"},
  "sensor": {"accel_bias": [0.1, 0.2, 0.3], "gps_update_rate": 5},
  "flight_computer": {"pitch": {"kp": 3}, "output_limit": 0.2},
  "body": {"thrust": 55},
  "noise_seed": 42
}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250.0, cfg.ControllerConfig().UpdateRate)
	assert.Equal(t, 4*time.Millisecond, cfg.ControllerConfig().Period())

	codec := cfg.CodecConfig()
	assert.Equal(t, protocol.FormatText, codec.Format)
	assert.Equal(t, protocol.ChecksumCRC8, codec.Checksum)
	assert.Equal(t, "\r\n", codec.Delimiter)
	assert.True(t, codec.TextChecksum)
	assert.Equal(t, byte(0xAA), codec.SyncByte)

	tc := cfg.TransportConfig()
	assert.Equal(t, "/dev/ttyACM0", tc.Path)
	assert.Equal(t, 921600, tc.Options.BaudRate)
	assert.Equal(t, "E", tc.Options.Parity)
	assert.Equal(t, transport.DefaultDataBits, tc.Options.DataBits)

	sc := cfg.SensorConfig()
	assert.Equal(t, geom.Vec3{X: 0.1, Y: 0.2, Z: 0.3}, sc.AccelBias)
	assert.Equal(t, 5.0, sc.GPSUpdateRate)
	assert.Equal(t, sensor.DefaultConfig().GyroBias, sc.GyroBias)

	fc := cfg.FlightComputerConfig()
	assert.Equal(t, 3.0, fc.Pitch.Kp)
	assert.Equal(t, flightcomputer.DefaultConfig().Pitch.Ki, fc.Pitch.Ki)
	assert.Equal(t, flightcomputer.DefaultConfig().Yaw, fc.Yaw)
	assert.Equal(t, 0.2, fc.OutputLimit)

	assert.Equal(t, 55.0, cfg.BodyConfig().Thrust)
	require.NotNil(t, cfg.NoiseSeed)
	assert.Equal(t, uint64(42), *cfg.NoiseSeed)
}

func TestLoadYAML(t *testing.T) {
	for _, name := range []string{"hil.yaml", "hil.yml"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, `
controller:
  update_rate: 50
protocol:
  byte_order: big
  sync_byte: 126
transport:
  flow_control: none
  buffer_size: 2048
flight_computer:
  alpha: 0.05
  yaw:
    kd: 0.2
`)
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 50.0, cfg.GetUpdateRate())
			assert.Equal(t, protocol.BigEndian, cfg.CodecConfig().ByteOrder)
			assert.Equal(t, byte(0x7E), cfg.CodecConfig().SyncByte)
			assert.Equal(t, 2048, cfg.TransportConfig().BufferSize)
			assert.Equal(t, 0.05, cfg.FlightComputerConfig().Alpha)
			assert.Equal(t, 0.2, cfg.FlightComputerConfig().Yaw.Kd)
			assert.Nil(t, cfg.NoiseSeed)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{"wrong extension", "hil.toml", "x = 1", "extension"},
		{"bad json", "hil.json", `{"controller": {"update_rate": "fast"}}`, "parse config json"},
		{"truncated json", "hil.json", `{"controller": {`, "parse config json"},
		{"bad yaml", "hil.yaml", "controller: [1, 2", "parse config yaml"},
		{"invalid rate", "hil.json", `{"controller": {"update_rate": -5}}`, "controller"},
		{"invalid format", "hil.json", `{"protocol": {"format": "morse"}}`, "protocol"},
		{"invalid baud", "hil.json", `{"transport": {"baud_rate": 12345}}`, "transport"},
		{"unknown flow control", "hil.json", `{"transport": {"flow_control": "xonxoff"}}`, "transport"},
		{"invalid sensor", "hil.json", `{"sensor": {"gps_dropout_prob": 2}}`, "sensor"},
		{"invalid alpha", "hil.json", `{"flight_computer": {"alpha": 3}}`, "flight_computer"},
		{"invalid body", "hil.json", `{"body": {"mass": 0}}`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/path/to/hil.json")
	assert.Error(t, err)
}

func TestLoadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(maxFileSize+1))
	require.NoError(t, f.Close())

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
