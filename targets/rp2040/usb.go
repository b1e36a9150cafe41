//go:build rp2040

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// machine.Serial is USB CDC on RP2040, the baud rate is ignored
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
