package protocol

import "github.com/sigurn/crc8"

// XOR returns the XOR of every byte in data.
func XOR(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}

var crc8Table = crc8.MakeTable(crc8.CRC8)

// CRC8 computes CRC-8 with polynomial 0x07, initial value 0, MSB first and
// no input or output reflection.
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crc8Table)
}

// Checksum computes the checksum of data for the given mode. ChecksumNone
// always yields 0.
func Checksum(mode ChecksumType, data []byte) byte {
	switch mode {
	case ChecksumXOR:
		return XOR(data)
	case ChecksumCRC8:
		return CRC8(data)
	default:
		return 0
	}
}
