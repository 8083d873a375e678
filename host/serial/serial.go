// Package serial opens the link to the actuator firmware.
package serial

import (
	"errors"
	"io"
	"time"
)

var ErrNoDevice = errors.New("no serial device configured")

// Port is a byte stream to the firmware. Besides the native serial port the
// host uses an in-process loopback for simulation and tests.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// ReadTimeout bounds a single Read; zero blocks.
	ReadTimeout time.Duration
}

const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100 * time.Millisecond
)

// DefaultConfig returns the default configuration for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
