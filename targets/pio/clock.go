//go:build rp2040

package pio

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // Raw timer high word
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// HardwareClock reads the 1 MHz hardware timer directly.
// Cheaper than time.Now in the inter-byte poll loop.
type HardwareClock struct{}

// NowMicros returns the full 64-bit microsecond counter
func (HardwareClock) NowMicros() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		// If high didn't change, we got a consistent reading
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}
