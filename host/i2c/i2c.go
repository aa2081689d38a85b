// Package i2c provides an I2C master bus backed by the Linux i2c-dev
// interface (/dev/i2c-N). It is a drivers.I2C, so it plugs into
// transport.NewI2C like any TinyGo bus.
package i2c

import "time"

// Linux i2c-dev ioctl requests
const (
	ioctlSlave   = 0x0703 // I2C_SLAVE: set the target address
	ioctlTimeout = 0x0702 // I2C_TIMEOUT: adapter timeout in units of 10 ms
)

// DefaultDevice is the bus the actuator is wired to on the controller.
const DefaultDevice = "/dev/i2c-1"

// timeoutUnits converts d to the i2c-dev timeout unit, rounding up so a
// positive duration never becomes "no timeout".
func timeoutUnits(d time.Duration) int {
	const unit = 10 * time.Millisecond
	if d <= 0 {
		return 0
	}
	return int((d + unit - 1) / unit)
}
