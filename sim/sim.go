// Package sim is an in-process stand-in for the actuator peer. It speaks
// the wire protocol, keeps slot and motion state, and exposes knobs for
// taking the peer offline or breaking individual transfers. The CLI uses
// it for dry runs; tests use it as a scriptable transport.
package sim

import (
	"sync"
	"time"

	"actuatorlink/protocol"
	"actuatorlink/transport"
)

// Peer is a simulated actuator. It is both a transport.Bus (Attach
// returns the peer itself) and a transport.Device.
type Peer struct {
	mu sync.Mutex

	online       bool
	transmitErr  error
	receiveErr   error
	override     []byte
	pending      []byte
	receiveGate  chan struct{}
	receiveEnter chan struct{}

	status   protocol.Status
	commands []protocol.Command

	probes    int
	transmits int
	receives  int
	detaches  int
}

// New returns an online peer with a charged battery and all slots
// closed.
func New() *Peer {
	p := &Peer{online: true}
	p.status = protocol.Status{
		Code:         protocol.StatusOK,
		BatteryV:     7.4,
		MotorEnabled: true,
	}
	for i := range p.status.Slots {
		p.status.Slots[i].Slot = i
	}
	return p
}

// Attach implements transport.Bus.
func (p *Peer) Attach(addr uint16) (transport.Device, error) {
	return p, nil
}

// SetOnline powers the peer on or off. An offline peer NACKs everything.
func (p *Peer) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

// FailTransmit makes payload transmits (not probes) return err. Pass nil
// to clear.
func (p *Peer) FailTransmit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transmitErr = err
}

// FailReceive makes receives return err. Pass nil to clear.
func (p *Peer) FailReceive(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receiveErr = err
}

// SetReply makes the next receive return raw verbatim instead of the
// generated reply.
func (p *Peer) SetReply(raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = append([]byte(nil), raw...)
}

// SetHeartRate updates the heart rate relayed from the wearable and marks
// the BLE link connected when bpm is positive.
func (p *Peer) SetHeartRate(bpm int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.HeartRate = bpm
	p.status.BLEConnected = bpm > 0
}

// HoldReceive blocks every receive until the returned release func is
// called. entered receives a value each time a receive starts waiting.
func (p *Peer) HoldReceive() (entered <-chan struct{}, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gate := make(chan struct{})
	enter := make(chan struct{}, 16)
	p.receiveGate = gate
	p.receiveEnter = enter
	var once sync.Once
	return enter, func() {
		once.Do(func() {
			p.mu.Lock()
			p.receiveGate = nil
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Transmit implements transport.Transport. A single zero byte is a
// liveness probe and is acknowledged without being parsed. Probes and
// payload transmits are counted separately, whether or not the peer is
// online.
func (p *Peer) Transmit(data []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(data) == 1 && data[0] == 0 {
		p.probes++
		if !p.online {
			return transport.ErrNack
		}
		return nil
	}

	p.transmits++
	if !p.online {
		return transport.ErrNack
	}
	if p.transmitErr != nil {
		return p.transmitErr
	}

	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		p.pending = protocol.EncodeAck(protocol.StatusError)
		return nil
	}
	p.commands = append(p.commands, cmd)
	p.pending = p.apply(cmd)
	return nil
}

// apply updates the simulated state and returns the reply. Must be
// called with p.mu held.
func (p *Peer) apply(cmd protocol.Command) []byte {
	switch c := cmd.(type) {
	case protocol.VehicleMove:
		p.status.IsMoving = c.Direction != protocol.Stop
		return protocol.EncodeAck(protocol.StatusOK)

	case protocol.StorageControl:
		if c.Slot < 0 || c.Slot >= protocol.NumSlots {
			return protocol.EncodeAck(protocol.StatusError)
		}
		p.status.Slots[c.Slot].IsOpen = c.Action == protocol.Open
		return protocol.EncodeAck(protocol.StatusOK)

	case protocol.StatusQuery:
		reply, err := protocol.EncodeStatus(&p.status)
		if err != nil {
			return protocol.EncodeAck(protocol.StatusError)
		}
		return reply
	}
	return protocol.EncodeAck(protocol.StatusError)
}

// Receive implements transport.Transport. The reply is written at the
// start of buf and the rest is zero-filled, the way the firmware pads
// its I2C transmit buffer.
func (p *Peer) Receive(buf []byte, timeout time.Duration) error {
	p.mu.Lock()
	gate, enter := p.receiveGate, p.receiveEnter
	p.mu.Unlock()

	if gate != nil {
		select {
		case enter <- struct{}{}:
		default:
		}
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.online {
		return transport.ErrNack
	}
	p.receives++
	if p.receiveErr != nil {
		return p.receiveErr
	}

	reply := p.pending
	if p.override != nil {
		reply, p.override = p.override, nil
	}
	p.pending = nil

	for i := range buf {
		buf[i] = 0
	}
	copy(buf, reply)
	return nil
}

// Detach implements transport.Device. The peer stays usable; the count
// lets tests check teardown.
func (p *Peer) Detach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detaches++
	return nil
}

// Status returns a copy of the simulated state.
func (p *Peer) Status() protocol.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Commands returns the commands received so far.
func (p *Peer) Commands() []protocol.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Command(nil), p.commands...)
}

// Probes returns the number of liveness probes seen.
func (p *Peer) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

// Transmits returns the number of payload transmits attempted.
func (p *Peer) Transmits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transmits
}

func (p *Peer) Receives() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receives
}

func (p *Peer) Detaches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detaches
}
