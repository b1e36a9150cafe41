//go:build !wasm

package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// NativePort wraps the tarm/serial implementation
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
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

// Flush discards bytes received but not yet read
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the configured device path
func (p *NativePort) Device() string {
	return p.cfg.Device
}
