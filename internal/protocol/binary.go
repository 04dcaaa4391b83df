package protocol

import (
	"fmt"
	"math"

	"github.com/banshee-data/hilsim/internal/geom"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/units"
)

/*
Binary sensor frame (BinaryFrameSize bytes, multi-byte fields in the
configured byte order):

	offset size field              encoding        step
	0      1    sync               SyncByte
	1      1    length             total frame size
	2      4    timestamp          uint32 ms       1 ms
	6      6    accel x,y,z        int16 ×1000     0.001 m/s²
	12     6    gyro x,y,z         int16 ×10000    0.0001 rad/s
	18     4    pressure           uint32 ×1       1 Pa
	22     2    temperature        int16 °C ×100   0.01 °C
	24     6    mag x,y,z          int16 ×10       0.1 µT
	30     1    gps valid          0 or 1
	31     4    latitude           int32 ×1e7      1e-7 °
	35     4    longitude          int32 ×1e7      1e-7 °
	39     4    altitude           int32 ×1000     1 mm
	43     6    velocity n,e,d     int16 ×100      0.01 m/s
	49     1    checksum           over bytes 0..48

GPS bytes 31..48 are zero when the valid flag is 0. Values are rounded to
the nearest step; values outside the integer range wrap at the field width.

Binary command frame: sync | type | payload | checksum.

	type 0x01 gimbal      payload int16 x, int16 y (÷1000 rad)
	type 0x02 parachute   payload 1 byte (non-zero = deploy)
	type 0x03 ignition    payload 1 byte (non-zero = arm)
	type 0x04 status      no payload
*/

// Binary frame layout constants.
const (
	BinaryFrameSize = 50
	gpsBlockSize    = 18

	accelScale    = 1000
	gyroScale     = 10000
	pressureScale = 1
	tempScale     = 100
	magScale      = 10
	latLonScale   = 1e7
	altScale      = 1000
	velScale      = 100
	gimbalScale   = 1000
)

// commandSizes maps each command type to its full frame size.
var commandSizes = map[CommandType]int{
	TypeGimbal:        2 + 4 + 1,
	TypeParachute:     2 + 1 + 1,
	TypeIgnition:      2 + 1 + 1,
	TypeStatusRequest: 2 + 1,
}

// Binary is the fixed-point binary codec.
type Binary struct {
	cfg   Config
	order byteOrder
}

// NewBinary returns a binary codec for cfg regardless of cfg.Format.
func NewBinary(cfg Config) (*Binary, error) {
	cfg.Format = FormatBinary
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Binary{cfg: cfg, order: cfg.byteOrder()}, nil
}

// fixed scales and rounds v, wrapping modulo 2^32 so the caller's integer
// conversion truncates at the field width. NaN and ±Inf encode as zero.
func fixed(v, scale float64) int64 {
	x := math.Round(v * scale)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int64(math.Mod(x, 1<<32))
}

func (b *Binary) putI16(buf []byte, v, scale float64) []byte {
	return b.order.AppendUint16(buf, uint16(fixed(v, scale)))
}

func (b *Binary) putI32(buf []byte, v, scale float64) []byte {
	return b.order.AppendUint32(buf, uint32(fixed(v, scale)))
}

func (b *Binary) putVec(buf []byte, v geom.Vec3, scale float64) []byte {
	buf = b.putI16(buf, v.X, scale)
	buf = b.putI16(buf, v.Y, scale)
	return b.putI16(buf, v.Z, scale)
}

// Encode serialises p into a BinaryFrameSize-byte frame.
func (b *Binary) Encode(p sensor.Packet) []byte {
	buf := make([]byte, 0, BinaryFrameSize)
	buf = append(buf, b.cfg.SyncByte, 0)
	buf = b.order.AppendUint32(buf, p.Timestamp)
	buf = b.putVec(buf, p.Accel, accelScale)
	buf = b.putVec(buf, p.Gyro, gyroScale)
	buf = b.putI32(buf, p.Baro.Pressure, pressureScale)
	buf = b.putI16(buf, units.KelvinToCelsius(p.Baro.Temperature), tempScale)
	buf = b.putVec(buf, p.Mag, magScale)

	if p.HasFix() {
		g := p.GPS
		buf = append(buf, 1)
		buf = b.putI32(buf, g.Latitude, latLonScale)
		buf = b.putI32(buf, g.Longitude, latLonScale)
		buf = b.putI32(buf, g.Altitude, altScale)
		buf = b.putI16(buf, g.VelocityN, velScale)
		buf = b.putI16(buf, g.VelocityE, velScale)
		buf = b.putI16(buf, g.VelocityD, velScale)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, gpsBlockSize)...)
	}

	buf[1] = byte(len(buf) + 1)
	return append(buf, Checksum(b.cfg.Checksum, buf))
}

// verify checks the trailing checksum byte of frame.
func (b *Binary) verify(frame []byte) bool {
	if b.cfg.Checksum == ChecksumNone {
		return true
	}
	n := len(frame) - 1
	return Checksum(b.cfg.Checksum, frame[:n]) == frame[n]
}

// Decode parses the command frame at the start of buf.
func (b *Binary) Decode(buf []byte) (Command, error) {
	if len(buf) < 2 {
		return nil, ErrShortBuffer
	}
	if buf[0] != b.cfg.SyncByte {
		return nil, ErrSyncMismatch
	}
	typ := CommandType(buf[1])
	size, ok := commandSizes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	if len(buf) < size {
		return nil, ErrShortBuffer
	}
	frame := buf[:size]
	if !b.verify(frame) {
		return nil, ErrChecksum
	}

	payload := frame[2 : size-1]
	switch typ {
	case TypeGimbal:
		return Gimbal{
			X: float64(int16(b.order.Uint16(payload[0:]))) / gimbalScale,
			Y: float64(int16(b.order.Uint16(payload[2:]))) / gimbalScale,
		}, nil
	case TypeParachute:
		return Parachute{Deploy: payload[0] != 0}, nil
	case TypeIgnition:
		return Ignition{Arm: payload[0] != 0}, nil
	default:
		return StatusRequest{}, nil
	}
}

// EncodeCommand serialises c as a command frame.
func (b *Binary) EncodeCommand(c Command) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil command", ErrUnknownType)
	}
	size, ok := commandSizes[c.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, c.Type())
	}
	buf := make([]byte, 0, size)
	buf = append(buf, b.cfg.SyncByte, byte(c.Type()))
	switch cmd := c.(type) {
	case Gimbal:
		buf = b.putI16(buf, cmd.X, gimbalScale)
		buf = b.putI16(buf, cmd.Y, gimbalScale)
	case Parachute:
		buf = append(buf, boolByte(cmd.Deploy))
	case Ignition:
		buf = append(buf, boolByte(cmd.Arm))
	case StatusRequest:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, c)
	}
	return append(buf, Checksum(b.cfg.Checksum, buf)), nil
}

// DecodePacket parses the sensor frame at the start of buf. A leading byte
// that is not the sync byte, or a frame that fails validation, reports one
// discardable byte so the caller can resynchronise.
func (b *Binary) DecodePacket(buf []byte) (sensor.Packet, int, error) {
	if len(buf) < 2 {
		return sensor.Packet{}, 0, ErrShortBuffer
	}
	if buf[0] != b.cfg.SyncByte {
		return sensor.Packet{}, 1, ErrSyncMismatch
	}
	if int(buf[1]) != BinaryFrameSize {
		return sensor.Packet{}, 1, fmt.Errorf("%w: length byte %d", ErrMalformed, buf[1])
	}
	if len(buf) < BinaryFrameSize {
		return sensor.Packet{}, 0, ErrShortBuffer
	}
	frame := buf[:BinaryFrameSize]
	if !b.verify(frame) {
		return sensor.Packet{}, 1, ErrChecksum
	}

	r := reader{buf: frame, off: 2, order: b.order}
	p := sensor.Packet{Timestamp: r.u32()}
	p.Accel = r.vec(accelScale)
	p.Gyro = r.vec(gyroScale)
	p.Baro.Pressure = float64(r.u32()) / pressureScale
	p.Baro.Temperature = units.CelsiusToKelvin(r.i16(tempScale))
	p.Mag = r.vec(magScale)
	if r.u8() != 0 {
		p.GPS = &sensor.GPSReading{
			Valid:     true,
			Latitude:  r.i32(latLonScale),
			Longitude: r.i32(latLonScale),
			Altitude:  r.i32(altScale),
			VelocityN: r.i16(velScale),
			VelocityE: r.i16(velScale),
			VelocityD: r.i16(velScale),
			FixType:   sensor.Fix3D,
		}
	}
	return p, BinaryFrameSize, nil
}

type reader struct {
	buf   []byte
	off   int
	order byteOrder
}

func (r *reader) u8() byte {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	v := r.order.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) i16(scale float64) float64 {
	v := int16(r.order.Uint16(r.buf[r.off:]))
	r.off += 2
	return float64(v) / scale
}

func (r *reader) i32(scale float64) float64 {
	return float64(int32(r.u32())) / scale
}

func (r *reader) vec(scale float64) geom.Vec3 {
	return geom.Vec3{X: r.i16(scale), Y: r.i16(scale), Z: r.i16(scale)}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
