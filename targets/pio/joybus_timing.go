package pio

// Joybus bit timing in state machine cycles. The state machine runs at
// 10 MHz, so one cycle is 100ns and every bit cell is 4µs:
//
//	'0': 1µs low, 2µs low,  1µs high
//	'1': 1µs low, 2µs high, 1µs high
const (
	joybusCyclesPerUS = 10
	joybusT1          = 10 // leading low phase
	joybusT2          = 20 // data phase
	joybusT3          = 10 // trailing high phase

	// Delay on the trailing "set pins, 1". The jmp back to write_bit and the
	// out that pulls the next bit run while the line is still high.
	joybusHighDelay = joybusT3 - 3
)

// Entry points, relative to the program offset
const (
	joybusWriteEntry = 0
	joybusWriteByte  = 1
	joybusWriteBit   = 2
	joybusReadEntry  = 11
	joybusReadLoop   = 12
	joybusProgramLen = 16
)

// Raw encodings for instructions built without the assembler, delay in bits 12..8
const (
	pioWait         = 0x2000 // wait <polarity> pin <index>
	pioWaitPolarity = 0x0080
	pioWaitSrcPin   = 0x0020
	pioMovPinsX     = 0xA001 // mov pins, x
)

func waitPin(high bool, delay uint8) uint16 {
	instr := uint16(pioWait|pioWaitSrcPin) | uint16(delay&0x1f)<<8
	if high {
		instr |= pioWaitPolarity
	}
	return instr
}

func movPinsX(delay uint8) uint16 {
	return pioMovPinsX | uint16(delay&0x1f)<<8
}
