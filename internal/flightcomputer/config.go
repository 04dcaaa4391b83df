package flightcomputer

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid flight computer config")

// Gains are the PID gains for one axis.
type Gains struct {
	Kp, Ki, Kd float64
}

// Config parameterises the estimator and the gimbal controller. Angles are
// radians.
type Config struct {
	// Alpha is the accelerometer weight of the complementary filter.
	Alpha float64
	// SampleInterval is the assumed time between packets, in seconds. The
	// emulator never measures it.
	SampleInterval float64

	Pitch Gains
	Yaw   Gains

	// IntegralLimit clamps each integral accumulator to ±IntegralLimit.
	IntegralLimit float64
	// OutputLimit clamps each gimbal command to ±OutputLimit.
	OutputLimit float64

	TargetPitch float64
	TargetYaw   float64
}

// DefaultConfig returns gains tuned for a 100 Hz stream and a gimbal limit of
// 0.15 rad.
func DefaultConfig() Config {
	gains := Gains{Kp: 2, Ki: 0.1, Kd: 0.05}
	return Config{
		Alpha:          0.02,
		SampleInterval: 0.01,
		Pitch:          gains,
		Yaw:            gains,
		IntegralLimit:  0.1,
		OutputLimit:    0.15,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be between 0 and 1, got %f", ErrInvalidConfig, c.Alpha)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample_interval must be positive, got %f", ErrInvalidConfig, c.SampleInterval)
	}
	if c.IntegralLimit < 0 {
		return fmt.Errorf("%w: integral_limit must be non-negative, got %f", ErrInvalidConfig, c.IntegralLimit)
	}
	if c.OutputLimit <= 0 {
		return fmt.Errorf("%w: output_limit must be positive, got %f", ErrInvalidConfig, c.OutputLimit)
	}
	return nil
}
