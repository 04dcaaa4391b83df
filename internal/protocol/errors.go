package protocol

import "errors"

// Decode errors. The transport treats all of them as "no packet yet".
var (
	ErrShortBuffer  = errors.New("buffer too short for frame")
	ErrSyncMismatch = errors.New("sync byte mismatch")
	ErrChecksum     = errors.New("checksum mismatch")
	ErrUnknownType  = errors.New("unknown packet type")
	ErrNoCommand    = errors.New("no command in buffer")
	ErrMalformed    = errors.New("malformed frame")
)
