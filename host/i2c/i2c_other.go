//go:build !linux

package i2c

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// ErrUnsupported is returned on platforms without i2c-dev.
var ErrUnsupported = errors.New("i2c-dev is only available on linux")

// Bus is unavailable on this platform.
type Bus struct{}

// Open always fails on this platform.
func Open(path string) (*Bus, error) { return nil, ErrUnsupported }

func (b *Bus) Path() string                      { return "" }
func (b *Bus) SetTimeout(d time.Duration) error  { return ErrUnsupported }
func (b *Bus) Tx(addr uint16, w, r []byte) error { return ErrUnsupported }
func (b *Bus) Close() error                      { return nil }

var _ drivers.I2C = (*Bus)(nil)
