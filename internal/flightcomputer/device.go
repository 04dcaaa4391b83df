package flightcomputer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/sensor"
	"github.com/banshee-data/hilsim/internal/transport"
)

// DeviceStats counts device-side traffic.
type DeviceStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	CommandsSent    uint64 `json:"commands_sent"`
	DecodeErrors    uint64 `json:"decode_errors"`
	WriteErrors     uint64 `json:"write_errors"`
}

// Device serves an Emulator over a port: it decodes sensor packets from the
// stream, feeds them to the emulator and writes back the commands it returns.
type Device struct {
	emu     *Emulator
	codec   protocol.DeviceCodec
	port    transport.Port
	bufSize int

	chuteMu     sync.Mutex
	descentRate float64
	chuteSent   bool

	writeMu sync.Mutex
	statsMu sync.Mutex
	stats   DeviceStats
}

// NewDevice returns a device reading from port with a receive buffer of
// bufSize bytes.
func NewDevice(emu *Emulator, codec protocol.DeviceCodec, port transport.Port, bufSize int) (*Device, error) {
	if emu == nil || codec == nil || port == nil {
		return nil, errors.New("flightcomputer: device requires an emulator, codec and port")
	}
	if bufSize < protocol.BinaryFrameSize {
		return nil, fmt.Errorf("flightcomputer: buffer size %d is smaller than one frame", bufSize)
	}
	return &Device{emu: emu, codec: codec, port: port, bufSize: bufSize}, nil
}

// Emulator returns the emulator being served.
func (d *Device) Emulator() *Emulator { return d.emu }

// Stats returns a copy of the counters.
func (d *Device) Stats() DeviceStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// SetChuteDescentRate makes the device deploy the parachute once, the first
// time a valid GPS fix reports a descent faster than rate m/s. Zero disables
// automatic deployment.
func (d *Device) SetChuteDescentRate(rate float64) {
	d.chuteMu.Lock()
	defer d.chuteMu.Unlock()
	d.descentRate = rate
}

func (d *Device) checkDescent(p sensor.Packet) {
	if !p.HasFix() {
		return
	}
	d.chuteMu.Lock()
	fire := d.descentRate > 0 && !d.chuteSent && p.GPS.VelocityD > d.descentRate
	if fire {
		d.chuteSent = true
	}
	d.chuteMu.Unlock()
	if !fire {
		return
	}
	monitoring.Logf("flightcomputer: descending at %.1f m/s, deploying parachute", p.GPS.VelocityD)
	if err := d.Send(d.emu.DeployChute()); err != nil {
		monitoring.Logf("flightcomputer: %v", err)
	}
}

// Send encodes cmd and writes it to the port.
func (d *Device) Send(cmd protocol.Command) error {
	frame, err := d.codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	d.writeMu.Lock()
	_, err = d.port.Write(frame)
	d.writeMu.Unlock()

	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	if err != nil {
		d.stats.WriteErrors++
		return fmt.Errorf("write %s command: %w", cmd.Type(), err)
	}
	d.stats.CommandsSent++
	return nil
}

// Run processes the stream until ctx is done or a read fails. Closing the port
// unblocks a pending read.
func (d *Device) Run(ctx context.Context) error {
	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)
	go func() {
		for {
			buf := make([]byte, 256)
			n, err := d.port.Read(buf)
			select {
			case chunks <- chunk{data: buf[:n], err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ring := transport.NewRingBuffer(d.bufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-chunks:
			for _, b := range c.data {
				if ring.Append(b) {
					continue
				}
				d.drain(ring)
				if !ring.Append(b) {
					monitoring.Logf("flightcomputer: receive buffer overflow, dropping %d bytes", ring.Len())
					ring.Reset()
					ring.Append(b)
				}
			}
			d.drain(ring)
			if c.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("flightcomputer: read: %w", c.err)
			}
		}
	}
}

// drain decodes every complete packet at the head of ring.
func (d *Device) drain(ring *transport.RingBuffer) {
	for ring.Len() > 0 {
		p, n, err := d.codec.DecodePacket(ring.Bytes())
		if errors.Is(err, protocol.ErrShortBuffer) {
			ring.Discard(n)
			return
		}
		if n <= 0 {
			ring.Discard(1)
		} else {
			ring.Discard(n)
		}
		if err != nil {
			d.statsMu.Lock()
			d.stats.DecodeErrors++
			d.statsMu.Unlock()
			continue
		}

		d.statsMu.Lock()
		d.stats.PacketsReceived++
		d.statsMu.Unlock()

		if cmd := d.emu.ProcessSensorData(p); cmd != nil {
			if err := d.Send(cmd); err != nil {
				monitoring.Logf("flightcomputer: %v", err)
			}
		}
		d.checkDescent(p)
	}
}
