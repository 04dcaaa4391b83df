package transport

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/timeutil"
)

// Stats are the session counters. They only ever grow until ResetStats.
type Stats struct {
	PacketsSent      uint64        `json:"packets_sent"`
	PacketsReceived  uint64        `json:"packets_received"`
	BytesTransferred uint64        `json:"bytes_transferred"`
	ErrorCount       uint64        `json:"error_count"`
	LastWriteLatency time.Duration `json:"last_write_latency_ns"`
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID string      `json:"session_id"`
	Path      string      `json:"path"`
	Options   PortOptions `json:"options"`
	Connected bool        `json:"connected"`
	Stats     Stats       `json:"stats"`
}

// Handlers receive session events. Any of them may be nil. They are called
// from the receive goroutine, or from the goroutine calling Connect, Write or
// Disconnect, and must not block. OnCommand must not call Disconnect; read
// errors and the final status are reported after the receive loop has ended.
type Handlers struct {
	OnCommand func(protocol.Command)
	OnError   func(error)
	OnStatus  func(Status)
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used to time writes.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session owns one connection: the port, its receive loop and the counters.
type Session struct {
	cfg      Config
	opener   Opener
	dec      protocol.Decoder
	handlers Handlers
	clock    timeutil.Clock
	id       string

	mu     sync.Mutex
	port   Port
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewSession returns a disconnected session. opener may be nil, in which case
// Connect reports ErrTransportUnavailable.
func NewSession(cfg Config, opener Opener, dec protocol.Decoder, h Handlers, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		opener:   opener,
		dec:      dec,
		handlers: h,
		clock:    timeutil.RealClock{},
		id:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ListPorts enumerates ports through the opener.
func (s *Session) ListPorts() ([]string, error) {
	if s.opener == nil {
		return nil, ErrTransportUnavailable
	}
	return s.opener.ListPorts()
}

// Connect opens the port and starts the receive loop. The loop stops when ctx
// is cancelled, on Disconnect, or on the first read error.
func (s *Session) Connect(ctx context.Context) error {
	if s.opener == nil {
		return ErrTransportUnavailable
	}

	s.mu.Lock()
	if s.port != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	port, err := s.opener.Open(s.cfg.Path, s.cfg.Options)
	if err != nil {
		s.mu.Unlock()
		cerr := &ConnectionError{Path: s.cfg.Path, Err: err}
		s.recordError()
		s.reportError(cerr)
		return cerr
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.port, s.cancel, s.done = port, cancel, done
	s.mu.Unlock()

	monitoring.Logf("transport: session %s connected to %q (%s)", s.id, s.cfg.Path, s.cfg.Options)
	go s.receive(loopCtx, port, done)
	s.reportStatus()
	return nil
}

// Disconnect stops the receive loop and closes the port. It is safe to call
// repeatedly and after the loop has ended on its own.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	port, cancel, done := s.port, s.cancel, s.done
	s.port, s.cancel = nil, nil
	s.mu.Unlock()

	if port == nil {
		if done != nil {
			<-done
		}
		return nil
	}

	cancel()
	err := port.Close()
	<-done

	stats := s.Stats()
	monitoring.Logf("transport: session %s disconnected after %d sent, %d received, %s",
		s.id, stats.PacketsSent, stats.PacketsReceived, humanize.Bytes(stats.BytesTransferred))
	s.reportStatus()
	return err
}

// Connected reports whether the receive loop is running.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Write sends p in a single port write.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := s.clock.Now()
	n, err := port.Write(p)
	if err == nil && n != len(p) {
		err = ErrWriteFailed
	}
	if err != nil {
		rerr := &RuntimeError{Op: "write", Err: err}
		s.recordError()
		s.reportError(rerr)
		return rerr
	}
	latency := s.clock.Since(start)

	s.statsMu.Lock()
	s.stats.PacketsSent++
	s.stats.BytesTransferred += uint64(n)
	s.stats.LastWriteLatency = latency
	s.statsMu.Unlock()
	return nil
}

// Stats returns a copy of the counters.
func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// ResetStats zeroes the counters.
func (s *Session) ResetStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats = Stats{}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	return Status{
		SessionID: s.id,
		Path:      s.cfg.Path,
		Options:   s.cfg.Options,
		Connected: s.Connected(),
		Stats:     s.Stats(),
	}
}

func (s *Session) recordError() {
	s.statsMu.Lock()
	s.stats.ErrorCount++
	s.statsMu.Unlock()
}

func (s *Session) reportError(err error) {
	monitoring.Logf("transport: session %s: %v", s.id, err)
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

func (s *Session) reportStatus() {
	if s.handlers.OnStatus != nil {
		s.handlers.OnStatus(s.Status())
	}
}

// receive runs the read loop and then releases the port. A read error is
// reported only after done is closed, so OnError may call Disconnect.
func (s *Session) receive(ctx context.Context, port Port, done chan struct{}) {
	err := s.pump(ctx, port)
	if err != nil {
		s.recordError()
	}
	owned := s.release(port)
	close(done)

	if owned {
		monitoring.Logf("transport: session %s receive loop ended", s.id)
	}
	if err != nil {
		s.reportError(&RuntimeError{Op: "read", Err: err})
	}
	if owned {
		s.reportStatus()
	}
}

// pump reads the port until ctx is done or a read fails, returning the read
// error. The blocking read runs in its own goroutine so that cancellation is
// observed promptly.
func (s *Session) pump(ctx context.Context, port Port) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, s.cfg.ReadChunk)
		for {
			n, err := port.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ring := NewRingBuffer(s.cfg.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case chunk := <-chunks:
			s.statsMu.Lock()
			s.stats.BytesTransferred += uint64(len(chunk))
			s.statsMu.Unlock()
			s.consume(ring, chunk)
		}
	}
}

// consume feeds chunk into ring one byte at a time and attempts a decode at
// the start of the buffer after every byte once two or more are buffered.
func (s *Session) consume(ring *RingBuffer, chunk []byte) {
	for _, b := range chunk {
		if !ring.Append(b) {
			monitoring.Logf("transport: session %s: receive buffer full (%d bytes), discarding", s.id, ring.Cap())
			ring.Reset()
			ring.Append(b)
		}
		if ring.Len() < 2 || s.dec == nil {
			continue
		}
		cmd, err := s.dec.Decode(ring.Bytes())
		if err != nil {
			continue
		}
		ring.Reset()
		s.statsMu.Lock()
		s.stats.PacketsReceived++
		s.statsMu.Unlock()
		if s.handlers.OnCommand != nil {
			s.handlers.OnCommand(cmd)
		}
	}
}

// release closes port if the loop ended on its own rather than through
// Disconnect, and reports whether it did so.
func (s *Session) release(port Port) bool {
	s.mu.Lock()
	owned := s.port == port
	if owned {
		s.cancel()
		s.port, s.cancel = nil, nil
	}
	s.mu.Unlock()

	if owned {
		port.Close()
	}
	return owned
}
