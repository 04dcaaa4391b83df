// Package transport carries encoded frames over a duplex byte stream and
// turns the inbound stream back into actuator commands.
package transport

import (
	"io"

	"go.bug.st/serial"
)

// Port is the minimal duplex stream the session needs. A serial.Port
// satisfies it, as do the in-memory test doubles in this package.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Opener opens ports by path and enumerates candidates.
type Opener interface {
	Open(path string, opts PortOptions) (Port, error)
	ListPorts() ([]string, error)
}

// SerialOpener opens real serial devices through go.bug.st/serial.
type SerialOpener struct{}

// Open opens the serial device at path with opts.
func (SerialOpener) Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPorts enumerates the serial devices visible to the host.
func (SerialOpener) ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// FixedOpener hands out an already-open port, such as one end of a Pipe.
type FixedOpener struct {
	Name string
	Port Port
}

// Open ignores path and opts and returns o.Port.
func (o FixedOpener) Open(string, PortOptions) (Port, error) {
	if o.Port == nil {
		return nil, ErrTransportUnavailable
	}
	return o.Port, nil
}

// ListPorts returns o.Name.
func (o FixedOpener) ListPorts() ([]string, error) {
	return []string{o.Name}, nil
}
