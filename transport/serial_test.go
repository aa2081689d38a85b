package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakePort hands out queued chunks one Read at a time and reports an
// idle line (0, io.EOF) when the queue is empty.
type fakePort struct {
	mu      sync.Mutex
	chunks  [][]byte
	written bytes.Buffer
	flushes int
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) == 0 {
		time.Sleep(time.Millisecond)
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *fakePort) queue(chunks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
}

func TestSerialLinkExchange(t *testing.T) {
	port := &fakePort{}
	dev, err := NewSerial(port).Attach(0x55)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := dev.Transmit([]byte(`{"t":"t"}`), 100*time.Millisecond); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if port.written.String() != `{"t":"t"}` {
		t.Errorf("Unexpected bytes written: %q", port.written.String())
	}
	if port.flushes != 1 {
		t.Errorf("Expected input flush before transmit, got %d", port.flushes)
	}

	port.queue(`{"s"`, `:1}`)
	buf := bytes.Repeat([]byte{0xAA}, 32)
	if err := dev.Receive(buf, 100*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte(`{"s":1}`)) {
		t.Errorf("Unexpected reply %q", buf)
	}
	for i := 7; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("Byte %d should be zeroed, got 0x%02x", i, buf[i])
		}
	}
}

func TestSerialLinkReceiveTimeout(t *testing.T) {
	dev, _ := NewSerial(&fakePort{}).Attach(0)
	if err := dev.Receive(make([]byte, 8), 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestSerialLinkKeepsOverflow(t *testing.T) {
	port := &fakePort{}
	dev, _ := NewSerial(port).Attach(0)

	port.queue("abcdef")
	first := make([]byte, 4)
	if err := dev.Receive(first, 50*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	second := make([]byte, 4)
	if err := dev.Receive(second, 50*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(first) != "abcd" || string(second[:2]) != "ef" {
		t.Errorf("Overflow not carried over: %q then %q", first, second)
	}
}

func TestSerialLinkTransmitDropsStaleInput(t *testing.T) {
	port := &fakePort{}
	dev, _ := NewSerial(port).Attach(0)

	port.queue("stale-reply-xyz")
	dev.Receive(make([]byte, 4), 50*time.Millisecond)

	if err := dev.Transmit([]byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	port.queue(`{"s":1}`)
	buf := make([]byte, 16)
	if err := dev.Receive(buf, 50*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte(`{"s":1}`)) {
		t.Errorf("Stale bytes leaked into reply: %q", buf)
	}
}

func TestSerialBusSinglePeer(t *testing.T) {
	bus := NewSerial(&fakePort{})
	dev, err := bus.Attach(1)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if _, err := bus.Attach(2); err == nil {
		t.Error("Second Attach should fail while the first is bound")
	}
	dev.Detach()
	if _, err := bus.Attach(2); err != nil {
		t.Errorf("Attach after Detach failed: %v", err)
	}
}

// slowPort behaves like a tarm port: a Read on an idle line blocks for
// the full read timeout before reporting no data.
type slowPort struct {
	fakePort
	idle time.Duration
}

func (p *slowPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	empty := len(p.chunks) == 0
	p.mu.Unlock()
	if empty {
		time.Sleep(p.idle)
		return 0, nil
	}
	return p.fakePort.Read(b)
}

func TestSerialLinkReceiveHonorsDeadline(t *testing.T) {
	port := &slowPort{idle: 100 * time.Millisecond}
	dev, _ := NewSerial(port).Attach(0)
	defer dev.Detach()

	start := time.Now()
	err := dev.Receive(make([]byte, 8), 50*time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if elapsed > 90*time.Millisecond {
		t.Errorf("Expected Receive to return near its 50ms timeout, took %v", elapsed)
	}
}

func TestSerialLinkReplyDoesNotWaitForPortIdle(t *testing.T) {
	port := &slowPort{idle: 100 * time.Millisecond}
	port.queue(`{"s":1}`)
	dev, _ := NewSerial(port).Attach(0)
	defer dev.Detach()

	buf := make([]byte, 16)
	start := time.Now()
	if err := dev.Receive(buf, 300*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Errorf("Expected reply within the idle gap, took %v", elapsed)
	}
	if !bytes.HasPrefix(buf, []byte(`{"s":1}`)) {
		t.Errorf("Unexpected reply %q", buf)
	}
}

func TestSerialLinkPresenceByteSkipsFlush(t *testing.T) {
	port := &fakePort{}
	dev, _ := NewSerial(port).Attach(0)
	defer dev.Detach()

	if err := dev.Transmit([]byte{0}, 50*time.Millisecond); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if port.flushes != 0 {
		t.Errorf("Expected no flush for the presence byte, got %d", port.flushes)
	}
	if err := dev.Transmit([]byte(`{"t":"t"}`), 50*time.Millisecond); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if port.flushes != 1 {
		t.Errorf("Expected 1 flush for a command, got %d", port.flushes)
	}
}

func TestSerialLinkCountsDroppedInput(t *testing.T) {
	port := &fakePort{}
	dev, _ := NewSerial(port).Attach(0)
	defer dev.Detach()
	link := dev.(*SerialLink)

	port.queue(string(bytes.Repeat([]byte{'x'}, 600)))
	deadline := time.Now().Add(time.Second)
	for link.Dropped() < 89 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := link.Dropped(); got != 89 {
		t.Errorf("Expected 89 dropped bytes, got %d", got)
	}

	buf := make([]byte, 600)
	if err := dev.Receive(buf, 100*time.Millisecond); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if n := bytes.IndexByte(buf, 0); n != 511 {
		t.Errorf("Expected 511 queued bytes, got %d", n)
	}
}
