// Package units provides shared physical constants and unit conversions used by
// the sensor models, the wire codecs and the telemetry output.
package units

import "math"

// Physical and geodetic constants.
const (
	// StandardGravity is the conventional value of g in m/s².
	StandardGravity = 9.80665

	// MetersPerDegree is the flat-earth conversion used for GPS offsets. It is
	// applied to both latitude and longitude.
	MetersPerDegree = 111000.0

	// ZeroCelsius is 0 °C expressed in kelvin.
	ZeroCelsius = 273.15

	// ReferenceTemperature is the barometer calibration temperature (20 °C) in kelvin.
	ReferenceTemperature = ZeroCelsius + 20

	// SeaLevelPressure is the ISA sea-level pressure in Pa.
	SeaLevelPressure = 101325.0

	// SeaLevelTemperature is the ISA sea-level temperature in kelvin.
	SeaLevelTemperature = 288.15
)

// KelvinToCelsius converts a temperature in kelvin to degrees Celsius.
func KelvinToCelsius(k float64) float64 {
	return k - ZeroCelsius
}

// CelsiusToKelvin converts a temperature in degrees Celsius to kelvin.
func CelsiusToKelvin(c float64) float64 {
	return c + ZeroCelsius
}

// MetersToDegrees converts a ground distance to degrees of arc.
func MetersToDegrees(m float64) float64 {
	return m / MetersPerDegree
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Speed unit constants used by the telemetry output.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
