package transport

import (
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial"
)

// Link defaults: 115200-8-N-1 without flow control.
const (
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultParity      = "N"
	DefaultFlowControl = FlowNone
)

// Flow control modes.
const (
	FlowNone     = "none"
	FlowHardware = "hardware"
)

var standardBaudRates = []int{
	110, 300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800,
	38400, 57600, 115200, 128000, 230400, 256000, 460800, 921600,
}

// PortOptions describes the serial line parameters.
type PortOptions struct {
	BaudRate    int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits    int    `json:"data_bits" yaml:"data_bits"`
	StopBits    int    `json:"stop_bits" yaml:"stop_bits"`
	Parity      string `json:"parity" yaml:"parity"`
	FlowControl string `json:"flow_control" yaml:"flow_control"`
}

// DefaultPortOptions returns 115200-8-N-1 with no flow control.
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		Parity:      DefaultParity,
		FlowControl: DefaultFlowControl,
	}
}

// Normalise validates the options and applies defaults for any unset values.
func (o PortOptions) Normalise() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if !slices.Contains(standardBaudRates, opts.BaudRate) {
		return opts, fmt.Errorf("invalid baud rate %d: not a standard rate", opts.BaudRate)
	}

	if opts.DataBits == 0 {
		opts.DataBits = DefaultDataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = DefaultStopBits
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	switch strings.TrimSpace(strings.ToLower(opts.FlowControl)) {
	case "", FlowNone:
		opts.FlowControl = FlowNone
	case FlowHardware, "rtscts":
		opts.FlowControl = FlowHardware
	default:
		return opts, fmt.Errorf("unsupported flow control %q: expected none or hardware", o.FlowControl)
	}

	return opts, nil
}

// Equal reports whether two PortOptions describe the same line configuration.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalise()
	b, errB := other.Normalise()
	return errA == nil && errB == nil && a == b
}

// String formats the options as e.g. 115200-8-N-1.
func (o PortOptions) String() string {
	s := fmt.Sprintf("%d-%d-%s-%d", o.BaudRate, o.DataBits, o.Parity, o.StopBits)
	if o.FlowControl == FlowHardware {
		s += "/rtscts"
	}
	return s
}

// SerialMode converts the options into a go.bug.st/serial mode. Hardware flow
// control is rejected because the serial library does not configure it.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalise()
	if err != nil {
		return nil, err
	}
	if opts.FlowControl != FlowNone {
		return nil, fmt.Errorf("flow control %q is not supported by the serial driver", opts.FlowControl)
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}
