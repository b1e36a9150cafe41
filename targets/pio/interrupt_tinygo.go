//go:build tinygo

package pio

import "runtime/interrupt"

// disableInterrupts masks interrupts so a claim cannot be interleaved
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
