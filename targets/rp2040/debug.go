//go:build rp2040

package main

import (
	"machine"
)

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART initializes UART0 on GPIO0 (TX) and GPIO1 (RX) for debugging.
// USB CDC carries the bridge protocol, so logs must go elsewhere.
// Baud rate: 115200
func InitDebugUART() {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		debugEnabled = false
		return
	}

	debugEnabled = true

	DebugPrintln("=== Joybus Bridge Debug UART Initialized ===")
	DebugPrintln("Baud: 115200, TX=GPIO0, RX=GPIO1")
}

// DebugPrintln writes a string to the debug UART with newline
func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}

// utoa converts an unsigned integer to a string without fmt
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[pos:])
}
