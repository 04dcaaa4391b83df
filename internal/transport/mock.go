package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPortClosed is returned by the in-memory ports after Close.
var ErrPortClosed = errors.New("port closed")

// TestablePort implements Port with configurable behaviour for testing. Reads
// block until data is added or the port is closed.
type TestablePort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// WriteLatency adds a delay to each Write call.
	WriteLatency time.Duration
	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool
	// CloseError is returned by Close if set.
	CloseError error

	readErr    error
	writeErr   error
	closed     bool
	closeCalls int
	writeCalls int
}

// NewTestablePort creates an open TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns queued data, blocking while none is available.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readErr == nil && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.readBuf.Len() > 0 {
		return p.readBuf.Read(b)
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	return 0, ErrPortClosed
}

// Write records b, optionally simulating latency and errors.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}
	if p.WriteLatency > 0 {
		p.mu.Unlock()
		time.Sleep(p.WriteLatency)
		p.mu.Lock()
	}
	if p.ShortWrite && len(b) > 0 {
		b = b[:len(b)-1]
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent reads.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.readCond.Broadcast()
}

// FailNextRead makes the next read with no queued data return err.
func (p *TestablePort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCond.Broadcast()
}

// FailNextWrite makes the next write return err.
func (p *TestablePort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns a copy of everything written so far.
func (p *TestablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.writeBuf.Bytes())
}

// Closed reports whether Close has been called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// CloseCalls returns the number of Close calls.
func (p *TestablePort) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

// MockOpener implements Opener for testing.
type MockOpener struct {
	mu sync.Mutex

	// Port is returned from Open.
	Port Port
	// Error is returned by Open if set.
	Error error
	// Ports is returned by ListPorts.
	Ports []string

	calls []MockOpenCall
}

// MockOpenCall records one Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockOpener returns an opener that hands out port.
func NewMockOpener(port Port) *MockOpener {
	return &MockOpener{Port: port}
}

// Open records the call and returns the configured port or error.
func (o *MockOpener) Open(path string, opts PortOptions) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, MockOpenCall{Path: path, Options: opts})
	if o.Error != nil {
		return nil, o.Error
	}
	return o.Port, nil
}

// ListPorts returns the configured port list.
func (o *MockOpener) ListPorts() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.Ports...), nil
}

// Calls returns the recorded Open calls.
func (o *MockOpener) Calls() []MockOpenCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]MockOpenCall(nil), o.calls...)
}

// pipeHalf is one direction of a Pipe.
type pipeHalf struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newPipeHalf() *pipeHalf {
	h := &pipeHalf{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *pipeHalf) read(b []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.closed && h.buf.Len() == 0 {
		h.cond.Wait()
	}
	if h.buf.Len() > 0 {
		return h.buf.Read(b)
	}
	return 0, io.EOF
}

func (h *pipeHalf) write(b []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	h.cond.Broadcast()
	return h.buf.Write(b)
}

func (h *pipeHalf) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

// PipePort is one end of an in-memory duplex link.
type PipePort struct {
	rx, tx *pipeHalf
	once   sync.Once
}

// Pipe returns two connected ports. Writes never block; bytes written to one
// end are read from the other. Closing either end ends both directions.
func Pipe() (*PipePort, *PipePort) {
	ab, ba := newPipeHalf(), newPipeHalf()
	return &PipePort{rx: ba, tx: ab}, &PipePort{rx: ab, tx: ba}
}

func (p *PipePort) Read(b []byte) (int, error)  { return p.rx.read(b) }
func (p *PipePort) Write(b []byte) (int, error) { return p.tx.write(b) }

// Close closes both directions. Pending data stays readable by the peer.
func (p *PipePort) Close() error {
	p.once.Do(func() {
		p.rx.close()
		p.tx.close()
	})
	return nil
}
