//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"

	"actuatorlink/transport"
)

// Bus is an open /dev/i2c-N adapter. Transactions are serialized by an
// internal mutex, so one Bus may be shared by several device bindings.
type Bus struct {
	mu     sync.Mutex
	fd     int
	path   string
	target int
	closed bool
}

// Open opens the i2c-dev node at path.
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", path, err)
	}
	return &Bus{fd: fd, path: path, target: -1}, nil
}

// Path returns the device node the bus was opened from.
func (b *Bus) Path() string { return b.path }

// SetTimeout sets the adapter-level transfer timeout.
func (b *Bus) SetTimeout(d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return transport.ErrDetached
	}
	if err := unix.IoctlSetInt(b.fd, ioctlTimeout, timeoutUnits(d)); err != nil {
		return fmt.Errorf("failed to set I2C timeout on %s: %w", b.path, err)
	}
	return nil
}

// Tx writes w then reads len(r) bytes from the 7-bit address addr.
// Either phase is skipped when its slice is empty.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return transport.ErrDetached
	}

	if int(addr) != b.target {
		if err := unix.IoctlSetInt(b.fd, ioctlSlave, int(addr)); err != nil {
			return fmt.Errorf("failed to select I2C address 0x%02x: %w", addr, mapErrno(err))
		}
		b.target = int(addr)
	}

	if len(w) > 0 {
		n, err := unix.Write(b.fd, w)
		if err != nil {
			return mapErrno(err)
		}
		if n != len(w) {
			return fmt.Errorf("short I2C write: %d/%d bytes", n, len(w))
		}
	}

	if len(r) > 0 {
		n, err := unix.Read(b.fd, r)
		if err != nil {
			return mapErrno(err)
		}
		if n != len(r) {
			return fmt.Errorf("short I2C read: %d/%d bytes", n, len(r))
		}
	}
	return nil
}

// Close closes the adapter.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return unix.Close(b.fd)
}

// mapErrno turns the errnos i2c-dev reports for an absent peer or a
// stuck bus into transport errors.
func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EREMOTEIO):
		return fmt.Errorf("%w: %v", transport.ErrNack, err)
	case errors.Is(err, unix.ETIMEDOUT):
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	}
	return err
}

var _ drivers.I2C = (*Bus)(nil)
