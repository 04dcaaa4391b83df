package sensor

import (
	"errors"
	"fmt"

	"github.com/banshee-data/hilsim/internal/geom"
)

// Config holds the measurement model parameters for every sensor family.
// Standard deviations are in the unit of the reading they perturb.
type Config struct {
	AccelNoise        float64   // m/s²
	AccelBias         geom.Vec3 // m/s²
	AccelNonlinearity float64   // k in v·(1+k·v), 1/(m/s²)

	GyroNoise float64   // rad/s
	GyroBias  geom.Vec3 // rad/s
	GyroDrift float64   // random-walk rate, rad/s/√s

	BaroNoise     float64 // Pa
	BaroDrift     float64 // Pa/s
	BaroTempCoeff float64 // Pa/K relative to 20 °C
	TempNoise     float64 // K

	MagField geom.Vec3 // nominal Earth field, North/East/Down µT
	MagBias  geom.Vec3 // µT
	MagNoise float64   // µT

	GPSUpdateRate      float64 // Hz
	GPSHorizontalNoise float64 // m
	GPSVerticalNoise   float64 // m
	GPSVelocityNoise   float64 // m/s
	GPSDropoutProb     float64 // per epoch

	OriginLatitude  float64 // degrees at simulation X=0
	OriginLongitude float64 // degrees at simulation Z=0
	OriginAltitude  float64 // m at simulation Y=0
}

// DefaultConfig returns the parameters of a consumer-grade MEMS IMU with a
// uBlox-class GPS receiver.
func DefaultConfig() Config {
	return Config{
		AccelNoise:        0.05,
		AccelBias:         geom.Vec3{X: 0.02, Y: -0.015, Z: 0.01},
		AccelNonlinearity: 0.0005,

		GyroNoise: 0.002,
		GyroBias:  geom.Vec3{X: 0.001, Y: -0.0008, Z: 0.0005},
		GyroDrift: 0.0001,

		BaroNoise:     5,
		BaroDrift:     0.1,
		BaroTempCoeff: 1.5,
		TempNoise:     0.05,

		MagField: geom.Vec3{X: 21.0, Y: 1.5, Z: 43.0},
		MagBias:  geom.Vec3{X: 0.3, Y: -0.2, Z: 0.1},
		MagNoise: 0.4,

		GPSUpdateRate:      10,
		GPSHorizontalNoise: 1.5,
		GPSVerticalNoise:   3,
		GPSVelocityNoise:   0.05,
		GPSDropoutProb:     0.01,

		OriginLatitude:  47.397742,
		OriginLongitude: 8.545594,
		OriginAltitude:  488,
	}
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid sensor config")

// Validate checks that the parameters describe a usable model.
func (c Config) Validate() error {
	sigmas := map[string]float64{
		"accel_noise":          c.AccelNoise,
		"gyro_noise":           c.GyroNoise,
		"gyro_drift":           c.GyroDrift,
		"baro_noise":           c.BaroNoise,
		"baro_drift":           c.BaroDrift,
		"temp_noise":           c.TempNoise,
		"mag_noise":            c.MagNoise,
		"gps_horizontal_noise": c.GPSHorizontalNoise,
		"gps_vertical_noise":   c.GPSVerticalNoise,
		"gps_velocity_noise":   c.GPSVelocityNoise,
	}
	for name, v := range sigmas {
		if v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %f", ErrInvalidConfig, name, v)
		}
	}
	if c.GPSUpdateRate <= 0 {
		return fmt.Errorf("%w: gps_update_rate must be positive, got %f", ErrInvalidConfig, c.GPSUpdateRate)
	}
	if c.GPSDropoutProb < 0 || c.GPSDropoutProb > 1 {
		return fmt.Errorf("%w: gps_dropout_prob must be between 0 and 1, got %f", ErrInvalidConfig, c.GPSDropoutProb)
	}
	if c.OriginLatitude < -90 || c.OriginLatitude > 90 {
		return fmt.Errorf("%w: origin_latitude out of range: %f", ErrInvalidConfig, c.OriginLatitude)
	}
	if c.OriginLongitude < -180 || c.OriginLongitude > 180 {
		return fmt.Errorf("%w: origin_longitude out of range: %f", ErrInvalidConfig, c.OriginLongitude)
	}
	return nil
}
