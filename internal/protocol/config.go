package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Format selects the wire format.
type Format string

const (
	FormatBinary Format = "binary"
	FormatText   Format = "text"
)

// ChecksumType selects the frame checksum.
type ChecksumType string

const (
	ChecksumXOR  ChecksumType = "xor"
	ChecksumCRC8 ChecksumType = "crc8"
	ChecksumNone ChecksumType = "none"
)

// Byte orders accepted by Config.ByteOrder.
const (
	LittleEndian = "little"
	BigEndian    = "big"
)

// Config describes the wire format. It is copied into the codec at
// construction.
type Config struct {
	Format    Format
	SyncByte  byte
	ByteOrder string
	Checksum  ChecksumType
	// Delimiter terminates text lines.
	Delimiter string
	// TextChecksum appends and requires an NMEA-style *HH XOR suffix on text lines.
	TextChecksum bool
}

// DefaultConfig returns a little-endian binary format with XOR checksums and
// sync byte 0xAA.
func DefaultConfig() Config {
	return Config{
		Format:    FormatBinary,
		SyncByte:  0xAA,
		ByteOrder: LittleEndian,
		Checksum:  ChecksumXOR,
		Delimiter: "\n",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Format {
	case FormatBinary, FormatText:
	default:
		return fmt.Errorf("unsupported format %q: expected binary or text", c.Format)
	}
	switch c.Checksum {
	case ChecksumXOR, ChecksumCRC8, ChecksumNone:
	default:
		return fmt.Errorf("unsupported checksum %q: expected xor, crc8 or none", c.Checksum)
	}
	switch strings.ToLower(c.ByteOrder) {
	case LittleEndian, BigEndian:
	default:
		return fmt.Errorf("unsupported byte order %q: expected little or big", c.ByteOrder)
	}
	if c.Format == FormatText && c.Delimiter == "" {
		return fmt.Errorf("text format requires a delimiter")
	}
	return nil
}

// byteOrder reads and appends multi-byte fields.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (c Config) byteOrder() byteOrder {
	if strings.ToLower(c.ByteOrder) == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
