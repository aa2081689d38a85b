//go:build !wasm

package serial

import (
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// conn is the part of *serial.Port that NativePort uses.
type conn interface {
	io.ReadWriteCloser
	Flush() error
}

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port conn
	cfg  *Config
}

// Open opens a native serial port
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ReadTimeout < MinReadTimeout {
		return nil, fmt.Errorf("serial read timeout must be at least %v, got %v", MinReadTimeout, cfg.ReadTimeout)
	}

	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port: port,
		cfg:  cfg,
	}, nil
}

// Read reads data from the serial port
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards buffered input in the driver without waiting on the line.
func (p *NativePort) Flush() error {
	if err := p.port.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", p.cfg.Device, err)
	}
	return nil
}

// Device returns the configured device path
func (p *NativePort) Device() string {
	return p.cfg.Device
}

var _ Port = (*NativePort)(nil)
