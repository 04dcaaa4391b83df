package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/units"
)

// Text line layout:
//
//	SENS,<ts>,<ax>,<ay>,<az>,<gx>,<gy>,<gz>,<baro>,<temp_C>,<gpsValid>,<lat>,<lon>,<alt>
//
// Steps: ts 1 ms, accel 0.001 m/s², gyro 0.0001 rad/s, baro 0.1 Pa,
// temperature 0.01 °C, lat/lon 1e-7 °, alt 0.01 m. Commands are
//
//	GIMBAL,<x>,<y>   CHUTE,<0|1>   ARM,<0|1>   STATUS
//
// With TextChecksum set every line carries a *HH suffix holding the XOR of
// the bytes before the '*', in upper-case hex.

const (
	sensorKeyword = "SENS"
	sensorFields  = 14
)

// Text is the comma-separated line codec.
type Text struct {
	cfg Config
}

// NewText returns a text codec for cfg regardless of cfg.Format.
func NewText(cfg Config) (*Text, error) {
	cfg.Format = FormatText
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Text{cfg: cfg}, nil
}

func (t *Text) finish(line []byte) []byte {
	if t.cfg.TextChecksum {
		line = fmt.Appendf(line, "*%02X", XOR(line))
	}
	return append(line, t.cfg.Delimiter...)
}

func appendFloat(buf []byte, v float64, prec int) []byte {
	buf = append(buf, ',')
	return strconv.AppendFloat(buf, v, 'f', prec, 64)
}

// Encode serialises p as one delimited line.
func (t *Text) Encode(p sensor.Packet) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, sensorKeyword...)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(p.Timestamp), 10)
	buf = appendFloat(buf, p.Accel.X, 3)
	buf = appendFloat(buf, p.Accel.Y, 3)
	buf = appendFloat(buf, p.Accel.Z, 3)
	buf = appendFloat(buf, p.Gyro.X, 4)
	buf = appendFloat(buf, p.Gyro.Y, 4)
	buf = appendFloat(buf, p.Gyro.Z, 4)
	buf = appendFloat(buf, p.Baro.Pressure, 1)
	buf = appendFloat(buf, units.KelvinToCelsius(p.Baro.Temperature), 2)

	var lat, lon, alt float64
	valid := byte('0')
	if p.HasFix() {
		valid = '1'
		lat, lon, alt = p.GPS.Latitude, p.GPS.Longitude, p.GPS.Altitude
	}
	buf = append(buf, ',', valid)
	buf = appendFloat(buf, lat, 7)
	buf = appendFloat(buf, lon, 7)
	buf = appendFloat(buf, alt, 2)
	return t.finish(buf)
}

// lines returns the complete lines in buf and the offset just past the last
// delimiter.
func (t *Text) lines(buf []byte) ([][]byte, int) {
	delim := []byte(t.cfg.Delimiter)
	var out [][]byte
	off := 0
	for {
		i := bytes.Index(buf[off:], delim)
		if i < 0 {
			return out, off
		}
		out = append(out, buf[off:off+i])
		off += i + len(delim)
	}
}

// body strips whitespace and, when enabled, verifies and strips the
// checksum suffix.
func (t *Text) body(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if !t.cfg.TextChecksum {
		return string(line), len(line) > 0
	}
	star := bytes.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return "", false
	}
	want, err := strconv.ParseUint(string(line[star+1:]), 16, 8)
	if err != nil || byte(want) != XOR(line[:star]) {
		return "", false
	}
	return string(line[:star]), true
}

// Decode scans the complete lines in buf for the first actuator command.
func (t *Text) Decode(buf []byte) (Command, error) {
	lines, _ := t.lines(buf)
	if len(lines) == 0 {
		return nil, ErrShortBuffer
	}
	for _, line := range lines {
		s, ok := t.body(line)
		if !ok {
			continue
		}
		if cmd, err := parseCommand(s); err == nil {
			return cmd, nil
		}
	}
	return nil, ErrNoCommand
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: flag %q", ErrMalformed, s)
	}
}

func parseCommand(s string) (Command, error) {
	fields := strings.Split(s, ",")
	switch {
	case fields[0] == "GIMBAL" && len(fields) == 3:
		x, errX := strconv.ParseFloat(fields[1], 64)
		y, errY := strconv.ParseFloat(fields[2], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%w: gimbal %q", ErrMalformed, s)
		}
		return Gimbal{X: x, Y: y}, nil
	case fields[0] == "CHUTE" && len(fields) == 2:
		v, err := parseFlag(fields[1])
		if err != nil {
			return nil, err
		}
		return Parachute{Deploy: v}, nil
	case fields[0] == "ARM" && len(fields) == 2:
		v, err := parseFlag(fields[1])
		if err != nil {
			return nil, err
		}
		return Ignition{Arm: v}, nil
	case fields[0] == "STATUS" && len(fields) == 1:
		return StatusRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// EncodeCommand serialises c as one delimited line.
func (t *Text) EncodeCommand(c Command) ([]byte, error) {
	var line []byte
	switch cmd := c.(type) {
	case Gimbal:
		line = []byte("GIMBAL")
		line = appendFloat(line, cmd.X, 4)
		line = appendFloat(line, cmd.Y, 4)
	case Parachute:
		line = fmt.Appendf(nil, "CHUTE,%d", boolByte(cmd.Deploy))
	case Ignition:
		line = fmt.Appendf(nil, "ARM,%d", boolByte(cmd.Arm))
	case StatusRequest:
		line = []byte("STATUS")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, c)
	}
	return t.finish(line), nil
}

// DecodePacket parses the first SENS line in buf. Complete lines that are
// not sensor lines are consumed and skipped.
func (t *Text) DecodePacket(buf []byte) (sensor.Packet, int, error) {
	delim := []byte(t.cfg.Delimiter)
	off := 0
	for {
		i := bytes.Index(buf[off:], delim)
		if i < 0 {
			return sensor.Packet{}, off, ErrShortBuffer
		}
		line := buf[off : off+i]
		off += i + len(delim)
		s, ok := t.body(line)
		if !ok || !strings.HasPrefix(s, sensorKeyword+",") {
			continue
		}
		p, err := parseSensorLine(s)
		if err != nil {
			return sensor.Packet{}, off, err
		}
		return p, off, nil
	}
}

func parseSensorLine(s string) (sensor.Packet, error) {
	fields := strings.Split(s, ",")
	if len(fields) != sensorFields {
		return sensor.Packet{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformed, len(fields), sensorFields)
	}
	ts, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return sensor.Packet{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
	}
	vals := make([]float64, 0, sensorFields)
	for i, f := range fields[2:] {
		if i == 8 { // gps valid flag
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return sensor.Packet{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i+2, err)
		}
		vals = append(vals, v)
	}
	valid, err := parseFlag(fields[10])
	if err != nil {
		return sensor.Packet{}, err
	}

	p := sensor.Packet{Timestamp: uint32(ts)}
	p.Accel.X, p.Accel.Y, p.Accel.Z = vals[0], vals[1], vals[2]
	p.Gyro.X, p.Gyro.Y, p.Gyro.Z = vals[3], vals[4], vals[5]
	p.Baro.Pressure = vals[6]
	p.Baro.Temperature = units.CelsiusToKelvin(vals[7])
	if valid {
		p.GPS = &sensor.GPSReading{
			Valid:     true,
			Latitude:  vals[8],
			Longitude: vals[9],
			Altitude:  vals[10],
			FixType:   sensor.Fix3D,
		}
	}
	return p, nil
}
