// Package config loads the HIL configuration file. Every field is optional:
// unset fields fall back to the component defaults, so partial files are
// safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/hilsim/internal/controller"
	"github.com/banshee-data/hilsim/internal/flightcomputer"
	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/physics"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/transport"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/hil.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// HILConfig is the root of the configuration file.
type HILConfig struct {
	Controller     ControllerSection     `json:"controller" yaml:"controller"`
	Protocol       ProtocolSection       `json:"protocol" yaml:"protocol"`
	Transport      TransportSection      `json:"transport" yaml:"transport"`
	Sensor         SensorSection         `json:"sensor" yaml:"sensor"`
	FlightComputer FlightComputerSection `json:"flight_computer" yaml:"flight_computer"`
	Body           BodySection           `json:"body" yaml:"body"`
	// NoiseSeed makes sensor noise reproducible when set.
	NoiseSeed *uint64 `json:"noise_seed,omitempty" yaml:"noise_seed,omitempty"`
}

type ControllerSection struct {
	UpdateRate      *float64 `json:"update_rate,omitempty" yaml:"update_rate,omitempty"`
	TelemetryBuffer *int     `json:"telemetry_buffer,omitempty" yaml:"telemetry_buffer,omitempty"`
}

type ProtocolSection struct {
	Format       *string `json:"format,omitempty" yaml:"format,omitempty"`
	SyncByte     *uint8  `json:"sync_byte,omitempty" yaml:"sync_byte,omitempty"`
	ByteOrder    *string `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	Checksum     *string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Delimiter    *string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	TextChecksum *bool   `json:"text_checksum,omitempty" yaml:"text_checksum,omitempty"`
}

type TransportSection struct {
	Path        *string `json:"path,omitempty" yaml:"path,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	FlowControl *string `json:"flow_control,omitempty" yaml:"flow_control,omitempty"`
	BufferSize  *int    `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	ReadChunk   *int    `json:"read_chunk,omitempty" yaml:"read_chunk,omitempty"`
}

// SensorSection mirrors sensor.Config. Vectors are [x, y, z].
type SensorSection struct {
	AccelNoise        *float64    `json:"accel_noise,omitempty" yaml:"accel_noise,omitempty"`
	AccelBias         *[3]float64 `json:"accel_bias,omitempty" yaml:"accel_bias,omitempty"`
	AccelNonlinearity *float64    `json:"accel_nonlinearity,omitempty" yaml:"accel_nonlinearity,omitempty"`

	GyroNoise *float64    `json:"gyro_noise,omitempty" yaml:"gyro_noise,omitempty"`
	GyroBias  *[3]float64 `json:"gyro_bias,omitempty" yaml:"gyro_bias,omitempty"`
	GyroDrift *float64    `json:"gyro_drift,omitempty" yaml:"gyro_drift,omitempty"`

	BaroNoise     *float64 `json:"baro_noise,omitempty" yaml:"baro_noise,omitempty"`
	BaroDrift     *float64 `json:"baro_drift,omitempty" yaml:"baro_drift,omitempty"`
	BaroTempCoeff *float64 `json:"baro_temp_coeff,omitempty" yaml:"baro_temp_coeff,omitempty"`
	TempNoise     *float64 `json:"temp_noise,omitempty" yaml:"temp_noise,omitempty"`

	MagField *[3]float64 `json:"mag_field,omitempty" yaml:"mag_field,omitempty"`
	MagBias  *[3]float64 `json:"mag_bias,omitempty" yaml:"mag_bias,omitempty"`
	MagNoise *float64    `json:"mag_noise,omitempty" yaml:"mag_noise,omitempty"`

	GPSUpdateRate      *float64 `json:"gps_update_rate,omitempty" yaml:"gps_update_rate,omitempty"`
	GPSHorizontalNoise *float64 `json:"gps_horizontal_noise,omitempty" yaml:"gps_horizontal_noise,omitempty"`
	GPSVerticalNoise   *float64 `json:"gps_vertical_noise,omitempty" yaml:"gps_vertical_noise,omitempty"`
	GPSVelocityNoise   *float64 `json:"gps_velocity_noise,omitempty" yaml:"gps_velocity_noise,omitempty"`
	GPSDropoutProb     *float64 `json:"gps_dropout_prob,omitempty" yaml:"gps_dropout_prob,omitempty"`

	OriginLatitude  *float64 `json:"origin_latitude,omitempty" yaml:"origin_latitude,omitempty"`
	OriginLongitude *float64 `json:"origin_longitude,omitempty" yaml:"origin_longitude,omitempty"`
	OriginAltitude  *float64 `json:"origin_altitude,omitempty" yaml:"origin_altitude,omitempty"`
}

// GainsSection holds PID gains for one axis.
type GainsSection struct {
	Kp *float64 `json:"kp,omitempty" yaml:"kp,omitempty"`
	Ki *float64 `json:"ki,omitempty" yaml:"ki,omitempty"`
	Kd *float64 `json:"kd,omitempty" yaml:"kd,omitempty"`
}

type FlightComputerSection struct {
	Alpha          *float64     `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	SampleInterval *float64     `json:"sample_interval,omitempty" yaml:"sample_interval,omitempty"`
	Pitch          GainsSection `json:"pitch" yaml:"pitch"`
	Yaw            GainsSection `json:"yaw" yaml:"yaw"`
	IntegralLimit  *float64     `json:"integral_limit,omitempty" yaml:"integral_limit,omitempty"`
	OutputLimit    *float64     `json:"output_limit,omitempty" yaml:"output_limit,omitempty"`
	TargetPitch    *float64     `json:"target_pitch,omitempty" yaml:"target_pitch,omitempty"`
	TargetYaw      *float64     `json:"target_yaw,omitempty" yaml:"target_yaw,omitempty"`
}

type BodySection struct {
	Mass              *float64 `json:"mass,omitempty" yaml:"mass,omitempty"`
	Thrust            *float64 `json:"thrust,omitempty" yaml:"thrust,omitempty"`
	BurnTime          *float64 `json:"burn_time,omitempty" yaml:"burn_time,omitempty"`
	DragArea          *float64 `json:"drag_area,omitempty" yaml:"drag_area,omitempty"`
	ParachuteDragArea *float64 `json:"parachute_drag_area,omitempty" yaml:"parachute_drag_area,omitempty"`
	GimbalRate        *float64 `json:"gimbal_rate,omitempty" yaml:"gimbal_rate,omitempty"`
	GimbalLimit       *float64 `json:"gimbal_limit,omitempty" yaml:"gimbal_limit,omitempty"`
	InitialTilt       *float64 `json:"initial_tilt,omitempty" yaml:"initial_tilt,omitempty"`
	StepRate          *float64 `json:"step_rate,omitempty" yaml:"step_rate,omitempty"`
}

// Empty returns a config with every field unset.
func Empty() *HILConfig {
	return &HILConfig{}
}

// Load reads a .json, .yaml or .yml config file and validates it.
func Load(path string) (*HILConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories. It panics if the file cannot be loaded and is intended for
// test setup.
func MustLoadDefaultConfig() *HILConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/hilsim/
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate builds every component config and reports the first error.
func (c *HILConfig) Validate() error {
	if err := c.ControllerConfig().Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if err := c.CodecConfig().Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if err := c.TransportConfig().Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.SensorConfig().Validate(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	if err := c.FlightComputerConfig().Validate(); err != nil {
		return fmt.Errorf("flight_computer: %w", err)
	}
	if err := c.BodyConfig().Validate(); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setVec(dst *geom.Vec3, src *[3]float64) {
	if src != nil {
		*dst = geom.Vec3{X: src[0], Y: src[1], Z: src[2]}
	}
}

// GetUpdateRate returns the controller update rate or the default.
func (c *HILConfig) GetUpdateRate() float64 {
	if c.Controller.UpdateRate == nil {
		return controller.DefaultUpdateRate
	}
	return *c.Controller.UpdateRate
}

// GetFormat returns the wire format or the default.
func (c *HILConfig) GetFormat() protocol.Format {
	if c.Protocol.Format == nil {
		return protocol.FormatBinary
	}
	return protocol.Format(strings.ToLower(*c.Protocol.Format))
}

// GetPath returns the device path, empty when unset.
func (c *HILConfig) GetPath() string {
	if c.Transport.Path == nil {
		return ""
	}
	return *c.Transport.Path
}

// ControllerConfig returns the controller loop settings.
func (c *HILConfig) ControllerConfig() controller.Config {
	cfg := controller.DefaultConfig()
	cfg.UpdateRate = c.GetUpdateRate()
	set(&cfg.TelemetryBuffer, c.Controller.TelemetryBuffer)
	return cfg
}

// CodecConfig returns the wire format settings.
func (c *HILConfig) CodecConfig() protocol.Config {
	cfg := protocol.DefaultConfig()
	p := c.Protocol
	cfg.Format = c.GetFormat()
	set(&cfg.SyncByte, p.SyncByte)
	set(&cfg.ByteOrder, p.ByteOrder)
	if p.Checksum != nil {
		cfg.Checksum = protocol.ChecksumType(strings.ToLower(*p.Checksum))
	}
	set(&cfg.Delimiter, p.Delimiter)
	set(&cfg.TextChecksum, p.TextChecksum)
	return cfg
}

// TransportConfig returns the session settings.
func (c *HILConfig) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	t := c.Transport
	cfg.Path = c.GetPath()
	set(&cfg.Options.BaudRate, t.BaudRate)
	set(&cfg.Options.DataBits, t.DataBits)
	set(&cfg.Options.StopBits, t.StopBits)
	set(&cfg.Options.Parity, t.Parity)
	set(&cfg.Options.FlowControl, t.FlowControl)
	set(&cfg.BufferSize, t.BufferSize)
	set(&cfg.ReadChunk, t.ReadChunk)
	return cfg
}

// SensorConfig returns the measurement model parameters.
func (c *HILConfig) SensorConfig() sensor.Config {
	cfg := sensor.DefaultConfig()
	s := c.Sensor
	set(&cfg.AccelNoise, s.AccelNoise)
	setVec(&cfg.AccelBias, s.AccelBias)
	set(&cfg.AccelNonlinearity, s.AccelNonlinearity)
	set(&cfg.GyroNoise, s.GyroNoise)
	setVec(&cfg.GyroBias, s.GyroBias)
	set(&cfg.GyroDrift, s.GyroDrift)
	set(&cfg.BaroNoise, s.BaroNoise)
	set(&cfg.BaroDrift, s.BaroDrift)
	set(&cfg.BaroTempCoeff, s.BaroTempCoeff)
	set(&cfg.TempNoise, s.TempNoise)
	setVec(&cfg.MagField, s.MagField)
	setVec(&cfg.MagBias, s.MagBias)
	set(&cfg.MagNoise, s.MagNoise)
	set(&cfg.GPSUpdateRate, s.GPSUpdateRate)
	set(&cfg.GPSHorizontalNoise, s.GPSHorizontalNoise)
	set(&cfg.GPSVerticalNoise, s.GPSVerticalNoise)
	set(&cfg.GPSVelocityNoise, s.GPSVelocityNoise)
	set(&cfg.GPSDropoutProb, s.GPSDropoutProb)
	set(&cfg.OriginLatitude, s.OriginLatitude)
	set(&cfg.OriginLongitude, s.OriginLongitude)
	set(&cfg.OriginAltitude, s.OriginAltitude)
	return cfg
}

func gains(dst *flightcomputer.Gains, src GainsSection) {
	set(&dst.Kp, src.Kp)
	set(&dst.Ki, src.Ki)
	set(&dst.Kd, src.Kd)
}

// FlightComputerConfig returns the emulator settings.
func (c *HILConfig) FlightComputerConfig() flightcomputer.Config {
	cfg := flightcomputer.DefaultConfig()
	f := c.FlightComputer
	set(&cfg.Alpha, f.Alpha)
	set(&cfg.SampleInterval, f.SampleInterval)
	gains(&cfg.Pitch, f.Pitch)
	gains(&cfg.Yaw, f.Yaw)
	set(&cfg.IntegralLimit, f.IntegralLimit)
	set(&cfg.OutputLimit, f.OutputLimit)
	set(&cfg.TargetPitch, f.TargetPitch)
	set(&cfg.TargetYaw, f.TargetYaw)
	return cfg
}

// BodyConfig returns the reference body parameters.
func (c *HILConfig) BodyConfig() physics.BodyConfig {
	cfg := physics.DefaultBodyConfig()
	b := c.Body
	set(&cfg.Mass, b.Mass)
	set(&cfg.Thrust, b.Thrust)
	set(&cfg.BurnTime, b.BurnTime)
	set(&cfg.DragArea, b.DragArea)
	set(&cfg.ParachuteDragArea, b.ParachuteDragArea)
	set(&cfg.GimbalRate, b.GimbalRate)
	set(&cfg.GimbalLimit, b.GimbalLimit)
	set(&cfg.InitialTilt, b.InitialTilt)
	set(&cfg.StepRate, b.StepRate)
	return cfg
}
