// Package transport defines the raw byte pipe between the controller and
// the actuator peer, and the bus abstractions a pipe is bound on.
//
// The layering mirrors the hardware:
//   - Bus: a shared medium (an I2C master bus, a UART port)
//   - Device: one peer bound on a Bus at a fixed address
//   - Handle: who releases the Bus (OwnedBus or BorrowedBus)
//
// Transports provide no framing and no acknowledgements beyond the raw
// transfer. Implementations must not be assumed reentrant; callers
// serialize whole exchanges themselves.
package transport

import (
	"errors"
	"io"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when a transfer does not finish in time.
	ErrTimeout = errors.New("transport: timeout")

	// ErrNack is returned when the addressed peer does not acknowledge.
	ErrNack = errors.New("transport: peer did not acknowledge")

	// ErrBusy is returned when a previous transfer is still running on
	// the device after its caller gave up on it.
	ErrBusy = errors.New("transport: previous transfer still in progress")

	// ErrDetached is returned by a Device after Detach.
	ErrDetached = errors.New("transport: device detached")
)

// Transport is a raw, addressed byte pipe to one fixed peer.
type Transport interface {
	// Transmit sends data to the peer.
	Transmit(data []byte, timeout time.Duration) error

	// Receive fills buf with bytes read from the peer. Bytes the peer
	// did not supply are left zero.
	Receive(buf []byte, timeout time.Duration) error
}

// Device is a Transport bound on a Bus. Detach releases the binding;
// it does not release the Bus.
type Device interface {
	Transport
	Detach() error
}

// Bus is a shared medium devices are bound on.
type Bus interface {
	Attach(addr uint16) (Device, error)
}

// Handle holds a Bus together with the responsibility for releasing it.
type Handle interface {
	Bus() Bus

	// Owned reports whether Release closes the underlying resource.
	Owned() bool

	// Release gives up the Bus. Only the first call has any effect.
	Release() error
}

// OwnedBus is a Bus this process opened and must close.
type OwnedBus struct {
	bus    Bus
	closer io.Closer
	once   sync.Once
	err    error
}

// Own wraps a Bus whose resource is closed by closer on Release.
func Own(bus Bus, closer io.Closer) *OwnedBus {
	return &OwnedBus{bus: bus, closer: closer}
}

func (o *OwnedBus) Bus() Bus    { return o.bus }
func (o *OwnedBus) Owned() bool { return true }

// Release closes the resource exactly once.
func (o *OwnedBus) Release() error {
	o.once.Do(func() {
		if o.closer != nil {
			o.err = o.closer.Close()
		}
	})
	return o.err
}

// BorrowedBus is a Bus that outlives its user and is never closed by it.
type BorrowedBus struct {
	bus Bus
}

// Borrow wraps a Bus owned elsewhere.
func Borrow(bus Bus) *BorrowedBus {
	return &BorrowedBus{bus: bus}
}

func (b *BorrowedBus) Bus() Bus       { return b.bus }
func (b *BorrowedBus) Owned() bool    { return false }
func (b *BorrowedBus) Release() error { return nil }
