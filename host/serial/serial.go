package serial

import (
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush discards any unread input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// ReadTimeout bounds a single Read; 0 blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration for a bridge firmware on USB CDC
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50 * time.Millisecond,
	}
}
