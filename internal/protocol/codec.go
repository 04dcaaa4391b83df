// Package protocol implements the host/device wire formats.
//
// Two interchangeable codecs share one contract: the host encodes sensor
// packets and decodes actuator commands. The binary codec uses fixed-point
// little- or big-endian frames with a sync byte and checksum; the text codec
// uses comma-separated lines. Both also implement the device side of the link
// (decode sensor packets, encode commands) so the flight computer emulator
// can sit on the far end of a loopback.
package protocol

import "github.com/banshee-data/hilsim/internal/sensor"

// Encoder serialises sensor packets.
type Encoder interface {
	Encode(sensor.Packet) []byte
}

// Decoder extracts an actuator command from the start of buf. A nil command
// is always paired with an error.
type Decoder interface {
	Decode(buf []byte) (Command, error)
}

// Codec is the host side of the link.
type Codec interface {
	Encoder
	Decoder
}

// DeviceCodec is the device side of the link.
type DeviceCodec interface {
	// DecodePacket decodes the first sensor packet in buf and returns the
	// number of bytes consumed. On error, consumed reports how many leading
	// bytes can be discarded.
	DecodePacket(buf []byte) (p sensor.Packet, consumed int, err error)
	// EncodeCommand serialises a command.
	EncodeCommand(Command) ([]byte, error)
}

// FullCodec implements both sides of the link.
type FullCodec interface {
	Codec
	DeviceCodec
}

// New returns the codec selected by cfg.Format.
func New(cfg Config) (FullCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Format == FormatText {
		return &Text{cfg: cfg}, nil
	}
	return &Binary{cfg: cfg, order: cfg.byteOrder()}, nil
}
