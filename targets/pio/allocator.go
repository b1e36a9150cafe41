package pio

import (
	"errors"

	"joybus/core"
)

var ErrInvalidBlock = errors.New("joybus: no such PIO block")

const (
	// RP2040 has 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	NumBlocks             = 2
	StateMachinesPerBlock = 4
)

// Allocator tracks claimed state machines and the Joybus program offset of
// each PIO block. The program is loaded at most once per block and shared
// by every port on it.
type Allocator struct {
	claimed [NumBlocks][StateMachinesPerBlock]bool
	offsets [NumBlocks]uint8
	loaded  [NumBlocks]bool
}

func checkBlock(block uint8) error {
	if block >= NumBlocks {
		return ErrInvalidBlock
	}
	return nil
}

// Claim reserves the lowest free state machine on block
func (a *Allocator) Claim(block uint8) (uint8, error) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if block >= NumBlocks {
		return 0, core.ErrResourceExhausted
	}
	for sm := uint8(0); sm < StateMachinesPerBlock; sm++ {
		if !a.claimed[block][sm] {
			a.claimed[block][sm] = true
			return sm, nil
		}
	}
	return 0, core.ErrResourceExhausted
}

// MarkClaimed records a state machine claimed outside the allocator
func (a *Allocator) MarkClaimed(block, sm uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if block < NumBlocks && sm < StateMachinesPerBlock {
		a.claimed[block][sm] = true
	}
}

// Release frees a state machine for the next Claim
func (a *Allocator) Release(block, sm uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if block < NumBlocks && sm < StateMachinesPerBlock {
		a.claimed[block][sm] = false
	}
}

// ProgramOffset returns the program offset on block, if loaded
func (a *Allocator) ProgramOffset(block uint8) (uint8, bool) {
	if block >= NumBlocks {
		return 0, false
	}
	return a.offsets[block], a.loaded[block]
}

// SetProgramOffset records that the program was loaded on block at offset
func (a *Allocator) SetProgramOffset(block, offset uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if block >= NumBlocks {
		return
	}
	a.offsets[block] = offset
	a.loaded[block] = true
}

// Status returns the claim table for debugging
func (a *Allocator) Status() [NumBlocks][StateMachinesPerBlock]bool {
	return a.claimed
}

// Reset forgets all claims and loaded programs (for testing)
func (a *Allocator) Reset() {
	*a = Allocator{}
}
