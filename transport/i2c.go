package transport

import (
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"
)

// NewI2C adapts an I2C master to a Bus. Any drivers.I2C works: a TinyGo
// machine.I2C, a driver-provided bus, or host/i2c on Linux.
func NewI2C(bus drivers.I2C) Bus {
	return i2cBus{bus: bus}
}

type i2cBus struct {
	bus drivers.I2C
}

func (b i2cBus) Attach(addr uint16) (Device, error) {
	return NewI2CDevice(b.bus, addr), nil
}

// I2CDevice binds one 7-bit address on a drivers.I2C bus.
//
// drivers.I2C has no timeout of its own, so each transfer runs in a helper
// goroutine and the caller stops waiting after the timeout. A transfer
// still running after its caller gave up holds the device; the next call
// waits for it up to its own timeout and then fails with ErrBusy.
type I2CDevice struct {
	bus      drivers.I2C
	addr     uint16
	inflight chan struct{}
	detached atomic.Bool
}

// NewI2CDevice binds addr (masked to 7 bits) on bus.
func NewI2CDevice(bus drivers.I2C, addr uint16) *I2CDevice {
	return &I2CDevice{
		bus:      bus,
		addr:     addr & 0x7F,
		inflight: make(chan struct{}, 1),
	}
}

// Address returns the bound 7-bit address.
func (d *I2CDevice) Address() uint16 { return d.addr }

// Transmit writes data to the device.
func (d *I2CDevice) Transmit(data []byte, timeout time.Duration) error {
	w := make([]byte, len(data))
	copy(w, data)
	_, err := d.tx(w, 0, timeout)
	return err
}

// Receive reads len(buf) bytes from the device.
func (d *I2CDevice) Receive(buf []byte, timeout time.Duration) error {
	r, err := d.tx(nil, len(buf), timeout)
	if err != nil {
		return err
	}
	copy(buf, r)
	return nil
}

// Detach marks the binding released. The bus itself is untouched.
func (d *I2CDevice) Detach() error {
	d.detached.Store(true)
	return nil
}

func (d *I2CDevice) tx(w []byte, readLen int, timeout time.Duration) ([]byte, error) {
	if d.detached.Load() {
		return nil, ErrDetached
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d.inflight <- struct{}{}:
	case <-timer.C:
		return nil, ErrBusy
	}

	// The helper owns r until it finishes; the caller only sees a copy.
	var r []byte
	if readLen > 0 {
		r = make([]byte, readLen)
	}
	done := make(chan error, 1)
	go func() {
		defer func() { <-d.inflight }()
		done <- d.bus.Tx(d.addr, w, r)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return r, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}
