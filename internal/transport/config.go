package transport

import "fmt"

// Default buffer sizes.
const (
	DefaultBufferSize = 1024
	DefaultReadChunk  = 256
)

// Config describes one session.
type Config struct {
	// Path names the device opened by the Opener.
	Path    string      `json:"path" yaml:"path"`
	Options PortOptions `json:"options" yaml:"options"`
	// BufferSize is the receive ring capacity in bytes.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// ReadChunk is the size of each port read.
	ReadChunk int `json:"read_chunk" yaml:"read_chunk"`
}

// DefaultConfig returns a session config with 115200-8-N-1 options and a
// 1 KiB receive ring.
func DefaultConfig() Config {
	return Config{
		Options:    DefaultPortOptions(),
		BufferSize: DefaultBufferSize,
		ReadChunk:  DefaultReadChunk,
	}
}

// Validate checks the configuration. The path may be empty for openers that
// ignore it.
func (c Config) Validate() error {
	if c.BufferSize < 2 {
		return fmt.Errorf("buffer size %d: must be at least 2", c.BufferSize)
	}
	if c.ReadChunk < 1 {
		return fmt.Errorf("read chunk %d: must be positive", c.ReadChunk)
	}
	if _, err := c.Options.Normalise(); err != nil {
		return err
	}
	return nil
}
