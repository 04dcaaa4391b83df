package physics

import (
	"math"

	"github.com/banshee-data/hilsim/internal/units"
)

// ISA constants.
const (
	lapseRate        = 0.0065  // K/m
	gasConstant      = 287.053 // J/(kg·K), dry air
	tropopause       = 11000.0 // m
	pressureExponent = units.StandardGravity / (gasConstant * lapseRate)
)

// StandardAtmosphere returns the International Standard Atmosphere at
// altitude metres: a linear lapse through the troposphere and an isothermal
// layer above 11 km. Altitudes below sea level extrapolate the troposphere.
func StandardAtmosphere(altitude float64) Atmosphere {
	h := math.Min(altitude, tropopause)
	t := units.SeaLevelTemperature - lapseRate*h
	p := units.SeaLevelPressure * math.Pow(t/units.SeaLevelTemperature, pressureExponent)
	if altitude > tropopause {
		p *= math.Exp(-units.StandardGravity * (altitude - tropopause) / (gasConstant * t))
	}
	return Atmosphere{
		Pressure:    p,
		Temperature: t,
		Density:     p / (gasConstant * t),
	}
}
