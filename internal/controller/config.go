package controller

import (
	"fmt"
	"time"
)

const (
	DefaultUpdateRate      = 100.0 // Hz
	DefaultTelemetryBuffer = 16
)

// Config holds the loop settings.
type Config struct {
	// UpdateRate is the nominal tick rate in Hz.
	UpdateRate float64 `json:"update_rate" yaml:"update_rate"`
	// TelemetryBuffer is the channel depth for each telemetry subscriber.
	// Events are dropped for subscribers that fall behind.
	TelemetryBuffer int `json:"telemetry_buffer" yaml:"telemetry_buffer"`
}

// DefaultConfig returns a 100 Hz loop.
func DefaultConfig() Config {
	return Config{
		UpdateRate:      DefaultUpdateRate,
		TelemetryBuffer: DefaultTelemetryBuffer,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.UpdateRate <= 0 || c.UpdateRate > 10000 {
		return fmt.Errorf("update rate %g Hz: must be in (0, 10000]", c.UpdateRate)
	}
	if c.TelemetryBuffer < 0 {
		return fmt.Errorf("telemetry buffer %d: must not be negative", c.TelemetryBuffer)
	}
	return nil
}

// Period returns the nominal tick interval.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.UpdateRate)
}
