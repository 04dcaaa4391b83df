package sensor

import "github.com/banshee-data/hilsim/internal/geom"

// BaroReading is a barometer sample.
type BaroReading struct {
	Pressure    float64 `json:"pressure"`    // Pa
	Temperature float64 `json:"temperature"` // K
}

// GPS fix types reported in GPSReading.FixType.
const (
	FixNone = 0
	Fix2D   = 2
	Fix3D   = 3
)

// GPSReading is one GPS epoch. When Valid is false the receiver reported a
// dropout and every other field is zero.
type GPSReading struct {
	Valid      bool    `json:"valid"`
	Latitude   float64 `json:"latitude"`  // degrees
	Longitude  float64 `json:"longitude"` // degrees
	Altitude   float64 `json:"altitude"`  // m
	VelocityN  float64 `json:"velocity_n"`
	VelocityE  float64 `json:"velocity_e"`
	VelocityD  float64 `json:"velocity_d"`
	Satellites int     `json:"satellites"`
	HDOP       float64 `json:"hdop"`
	FixType    int     `json:"fix_type"`
}

// Packet is the full set of readings produced for one controller tick.
// GPS is nil when no GPS epoch was due.
type Packet struct {
	Timestamp uint32      `json:"timestamp"` // ms since simulation start
	Accel     geom.Vec3   `json:"accel"`     // m/s², body frame
	Gyro      geom.Vec3   `json:"gyro"`      // rad/s, body frame
	Baro      BaroReading `json:"baro"`
	Mag       geom.Vec3   `json:"mag"` // µT
	GPS       *GPSReading `json:"gps,omitempty"`
}

// HasFix reports whether the packet carries a valid GPS position.
func (p Packet) HasFix() bool {
	return p.GPS != nil && p.GPS.Valid
}

// TrueState is the noiseless physical state a Packet is derived from.
type TrueState struct {
	Time          float64   // s since simulation start
	SpecificForce geom.Vec3 // m/s², body frame
	AngularRate   geom.Vec3 // rad/s, body frame
	Position      geom.Vec3 // m, world frame
	Velocity      geom.Vec3 // m/s, world frame
	Pressure      float64   // Pa
	Temperature   float64   // K
}
