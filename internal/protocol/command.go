package protocol

import "fmt"

// CommandType identifies an actuator command on the wire.
type CommandType byte

// Binary command type bytes.
const (
	TypeGimbal        CommandType = 0x01
	TypeParachute     CommandType = 0x02
	TypeIgnition      CommandType = 0x03
	TypeStatusRequest CommandType = 0x04
)

func (t CommandType) String() string {
	switch t {
	case TypeGimbal:
		return "gimbal"
	case TypeParachute:
		return "parachute"
	case TypeIgnition:
		return "ignition"
	case TypeStatusRequest:
		return "status_request"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Command is an actuator command sent by the device under test. The concrete
// types are Gimbal, Parachute, Ignition and StatusRequest.
type Command interface {
	Type() CommandType
}

// Gimbal commands the thrust-vector gimbal angles in radians.
type Gimbal struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Parachute requests parachute deployment.
type Parachute struct {
	Deploy bool `json:"deploy"`
}

// Ignition arms or disarms the motor igniter.
type Ignition struct {
	Arm bool `json:"arm"`
}

// StatusRequest asks the host for a status report.
type StatusRequest struct{}

func (Gimbal) Type() CommandType        { return TypeGimbal }
func (Parachute) Type() CommandType     { return TypeParachute }
func (Ignition) Type() CommandType      { return TypeIgnition }
func (StatusRequest) Type() CommandType { return TypeStatusRequest }
