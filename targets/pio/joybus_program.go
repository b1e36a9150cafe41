//go:build rp2040 || rp2350

package pio

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildJoybusProgram creates the Joybus PIO program using AssemblerV0.
//
// Transmit words carry 8 data bits followed by a stop flag, shifted out MSB
// first with a 9 bit autopull. A set flag sends the stop bit and falls
// through into receive. Received bits are shifted in MSB first and
// autopushed every 8 bits, so each RX word holds one byte in bits 7..0.
func buildJoybusProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// write:
		asm.Set(rp2pio.SetDestPindirs, 1).Encode(), // 0: set pindirs, 1
		// write_byte:
		asm.Set(rp2pio.SetDestY, 7).Encode(), // 1: set y, 7
		// write_bit: pull the bit while the line is still high, so an autopull
		// stall never stretches the low phase
		asm.Out(rp2pio.OutDestX, 1).Encode(),                           // 2: out x, 1
		asm.Set(rp2pio.SetDestPins, 0).Delay(joybusT1-1).Encode(),      // 3: set pins, 0 [T1-1]
		movPinsX(joybusT2 - 1),                                         // 4: mov pins, x [T2-1]
		asm.Set(rp2pio.SetDestPins, 1).Delay(joybusHighDelay).Encode(), // 5: set pins, 1 [T3-3]
		asm.Jmp(joybusWriteBit, rp2pio.JmpYNZeroDec).Encode(),          // 6: jmp y--, write_bit
		asm.Out(rp2pio.OutDestX, 1).Encode(),                           // 7: out x, 1 (stop flag)
		asm.Jmp(joybusWriteByte, rp2pio.JmpXZero).Encode(),             // 8: jmp !x, write_byte
		// stop bit: 1µs low, 2µs high
		asm.Set(rp2pio.SetDestPins, 0).Delay(joybusT1-1).Encode(), // 9: set pins, 0 [T1-1]
		asm.Set(rp2pio.SetDestPins, 1).Delay(joybusT2-1).Encode(), // 10: set pins, 1 [T2-1]
		// read:
		asm.Set(rp2pio.SetDestPindirs, 0).Encode(), // 11: set pindirs, 0
		// read_loop:
		waitPin(false, joybusT1+joybusT2/2-1),              // 12: wait 0 pin 0 [T1+T2/2-1] (sample mid-bit)
		asm.In(rp2pio.InSrcPins, 1).Encode(),               // 13: in pins, 1
		waitPin(true, 0),                                   // 14: wait 1 pin 0
		asm.Jmp(joybusReadLoop, rp2pio.JmpAlways).Encode(), // 15: jmp read_loop
	}
}

// joybusConfig builds the state machine configuration shared by both entry points
func joybusConfig(offset uint8, pin machine.Pin) rp2pio.StateMachineConfig {
	cfg := rp2pio.DefaultStateMachineConfig()

	cfg.SetSetPins(pin, 1)
	cfg.SetOutPins(pin, 1)
	cfg.SetInPins(pin)

	// MSB first, autopull after 8 data bits + stop flag
	cfg.SetOutShift(false, true, 9)
	// MSB first, autopush every byte
	cfg.SetInShift(false, true, 8)

	cfg.SetWrap(offset, offset+joybusProgramLen-1)

	// 10 MHz state machine clock
	freq := machine.CPUFrequency()
	target := uint32(joybusCyclesPerUS * 1000000)
	whole := uint16(freq / target)
	frac := uint8((freq % target) * 256 / target)
	cfg.SetClkDivIntFrac(whole, frac)

	return cfg
}
