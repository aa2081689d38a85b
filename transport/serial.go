package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// serialIdleGap is how long the line must stay quiet after the first
// reply byte before Receive treats the reply as complete.
const serialIdleGap = 20 * time.Millisecond

// SerialPort is a UART whose Read returns (0, nil) or (0, io.EOF) once
// the line has been idle for the port's read timeout. host/serial.Port
// satisfies it.
type SerialPort interface {
	io.ReadWriter
	Flush() error
}

// NewSerial adapts a point-to-point UART to a Bus. A UART has room for a
// single peer, so the address passed to Attach is ignored and only one
// Device may be attached at a time.
func NewSerial(port SerialPort) Bus {
	return &serialBus{port: port}
}

type serialBus struct {
	mu       sync.Mutex
	port     SerialPort
	attached *SerialLink
}

func (b *serialBus) Attach(addr uint16) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached != nil && !b.attached.detached.Load() {
		return nil, fmt.Errorf("serial link already has a peer attached")
	}
	if b.attached != nil {
		// The old reader may still be parked in a port Read.
		<-b.attached.done
	}
	b.attached = newSerialLink(b.port)
	return b.attached, nil
}

// SerialLink is the Device on a UART. The UART has no address phase, so
// a transmit succeeds whenever the port accepts the bytes; a powered-off
// peer shows up only as a receive timeout.
//
// A reader goroutine moves bytes from the port into pending, so Receive
// waits on its own timers instead of on the port's read granularity.
type SerialLink struct {
	port SerialPort

	mu      sync.Mutex
	pending *fifo
	readErr error
	dropped atomic.Uint64

	arrived  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	detached atomic.Bool
}

func newSerialLink(port SerialPort) *SerialLink {
	l := &SerialLink{
		port:    port,
		pending: newFifo(512),
		arrived: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *SerialLink) readLoop() {
	defer close(l.done)
	chunk := make([]byte, 64)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		n, err := l.port.Read(chunk)
		if n > 0 {
			l.mu.Lock()
			if stored := l.pending.Write(chunk[:n]); stored < n {
				l.dropped.Add(uint64(n - stored))
			}
			l.mu.Unlock()
			l.signal()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			l.mu.Lock()
			l.readErr = err
			l.mu.Unlock()
			l.signal()
			return
		}
	}
}

func (l *SerialLink) signal() {
	select {
	case l.arrived <- struct{}{}:
	default:
	}
}

// Dropped returns the number of received bytes discarded because the
// input queue was full.
func (l *SerialLink) Dropped() uint64 {
	return l.dropped.Load()
}

// Transmit writes data. Unless data is the single probe byte, unread
// input is dropped first so a late reply to an earlier command can't be
// taken as the reply to this one.
func (l *SerialLink) Transmit(data []byte, timeout time.Duration) error {
	if l.detached.Load() {
		return ErrDetached
	}

	if !isProbe(data) {
		l.mu.Lock()
		l.pending.Reset()
		l.mu.Unlock()
		if err := l.port.Flush(); err != nil {
			return fmt.Errorf("failed to flush serial input: %w", err)
		}
	}

	start := time.Now()
	n, err := l.port.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(data))
	}
	if time.Since(start) > timeout {
		return ErrTimeout
	}
	return nil
}

func isProbe(data []byte) bool {
	return len(data) == 1 && data[0] == 0
}

// Receive collects bytes until buf is full, the line goes idle after at
// least one byte, or timeout elapses. Bytes received past the end of buf
// are kept for the next Receive.
func (l *SerialLink) Receive(buf []byte, timeout time.Duration) error {
	if l.detached.Load() {
		return ErrDetached
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	idle := time.NewTimer(serialIdleGap)
	defer idle.Stop()

	n := 0
wait:
	for {
		l.mu.Lock()
		got := l.pending.Read(buf[n:])
		readErr := l.readErr
		l.mu.Unlock()

		n += got
		if n == len(buf) {
			break
		}
		if readErr != nil && n == 0 {
			return readErr
		}

		var idleC <-chan time.Time
		if n > 0 {
			if got > 0 {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(serialIdleGap)
			}
			idleC = idle.C
		}

		select {
		case <-l.arrived:
		case <-idleC:
			break wait
		case <-deadline.C:
			break wait
		}
	}
	if n == 0 {
		return ErrTimeout
	}

	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// Detach releases the link so another peer binding can be made. The
// reader exits after its current port Read returns.
func (l *SerialLink) Detach() error {
	if l.detached.CompareAndSwap(false, true) {
		close(l.stop)
	}
	return nil
}
