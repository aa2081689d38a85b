//go:build !wasm

package serial

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeConn struct {
	flushErr error
	flushes  int
}

func (c *fakeConn) Read(b []byte) (int, error)  { return 0, nil }
func (c *fakeConn) Write(b []byte) (int, error) { return len(b), nil }
func (c *fakeConn) Close() error                { return nil }

func (c *fakeConn) Flush() error {
	c.flushes++
	return c.flushErr
}

func TestOpenRejectsShortReadTimeout(t *testing.T) {
	for _, d := range []time.Duration{0, 10 * time.Millisecond, MinReadTimeout - time.Millisecond} {
		cfg := DefaultConfig("/dev/null-serial")
		cfg.ReadTimeout = d
		_, err := Open(cfg)
		if err == nil || !strings.Contains(err.Error(), "at least") {
			t.Errorf("Expected read timeout error for %v, got %v", d, err)
		}
	}
	if _, err := Open(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestDefaultConfigReadTimeout(t *testing.T) {
	if got := DefaultConfig("/dev/ttyUSB0").ReadTimeout; got < MinReadTimeout {
		t.Errorf("Expected default read timeout >= %v, got %v", MinReadTimeout, got)
	}
}

func TestNativePortFlush(t *testing.T) {
	c := &fakeConn{}
	p := &NativePort{port: c, cfg: DefaultConfig("/dev/ttyUSB0")}
	if err := p.Flush(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if c.flushes != 1 {
		t.Errorf("Expected 1 driver flush, got %d", c.flushes)
	}

	ioErr := errors.New("input/output error")
	c.flushErr = ioErr
	if err := p.Flush(); !errors.Is(err, ioErr) {
		t.Errorf("Expected flush error to be returned, got %v", err)
	}
}
