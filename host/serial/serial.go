package serial

import (
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Mock serial (for testing)
//
// Read must return within the configured ReadTimeout when the line is
// idle, so a reader can notice a detached link.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any received but unread input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the actuator UART
	Baud int

	// Idle timeout for a single Read. termios counts it in tenths of a
	// second, so anything below MinReadTimeout is rejected by Open.
	ReadTimeout time.Duration
}

// MinReadTimeout is the shortest ReadTimeout the termios VTIME field can
// express.
const MinReadTimeout = 100 * time.Millisecond

// DefaultConfig returns the configuration used by the actuator firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: MinReadTimeout,
	}
}
