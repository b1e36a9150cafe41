package core

// Pin identifies the GPIO pin a port drives
type Pin uint8

// Engine is one programmable I/O block: a shared instruction memory plus a
// small set of state machines. Implementations live in the target packages.
type Engine interface {
	// Index returns the hardware block number (PIO0 = 0, PIO1 = 1)
	Index() uint8

	// ClaimStateMachine claims an unused state machine on this block.
	// Returns ErrResourceExhausted if every state machine is taken.
	ClaimStateMachine() (StateMachine, error)

	// ReleaseStateMachine stops sm and returns it to the free pool
	ReleaseStateMachine(sm StateMachine)

	// LoadProgram loads the Joybus program into instruction memory and
	// returns its offset. The program is loaded once per engine; later
	// calls return the same offset.
	LoadProgram() (uint8, error)
}

// StateMachine is a single execution unit running the Joybus program.
// Only one configuration (receive or transmit) is active at a time.
type StateMachine interface {
	// Index returns the state machine number within its engine
	Index() uint8

	// ConfigureReceive restarts the unit at the program's receive entry.
	// Clears both FIFOs and the shift counters.
	ConfigureReceive(offset uint8, pin Pin)

	// ConfigureTransmit restarts the unit at the program's transmit entry.
	ConfigureTransmit(offset uint8, pin Pin)

	// Put pushes one framed transmit word, blocking while the TX FIFO is full
	Put(word uint32)

	// Get pops one received word, blocking while the RX FIFO is empty
	Get() uint32

	// IsRxFIFOEmpty reports whether the RX FIFO is empty (non-blocking)
	IsRxFIFOEmpty() bool
}
