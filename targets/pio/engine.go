//go:build rp2040 || rp2350

package pio

// PIO backend for Joybus ports using tinygo-org/pio.
// The PIO program handles bit timing; the core package drives the FIFOs.

import (
	"joybus/core"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

const joybusPIOOrigin = 0 // Load at offset 0 for correct jump addresses

// DefaultAllocator tracks state machine claims and loaded programs for all
// engines created with NewEngine
var DefaultAllocator Allocator

// Engine is one PIO block running the Joybus program
type Engine struct {
	pio       *rp2pio.PIO
	pioNum    uint8
	allocator *Allocator
}

// NewEngine returns the engine for a PIO block
// pioNum: 0 for PIO0, 1 for PIO1
func NewEngine(pioNum uint8) (*Engine, error) {
	if err := checkBlock(pioNum); err != nil {
		return nil, err
	}

	pioHW := rp2pio.PIO0
	if pioNum == 1 {
		pioHW = rp2pio.PIO1
	}

	return &Engine{
		pio:       pioHW,
		pioNum:    pioNum,
		allocator: &DefaultAllocator,
	}, nil
}

// Index returns the PIO block number
func (e *Engine) Index() uint8 {
	return e.pioNum
}

// ClaimStateMachine claims an unused state machine on this block
func (e *Engine) ClaimStateMachine() (core.StateMachine, error) {
	for {
		smNum, err := e.allocator.Claim(e.pioNum)
		if err != nil {
			return nil, err
		}
		// Someone outside the allocator may already hold it
		sm := e.pio.StateMachine(smNum)
		if sm.TryClaim() {
			return e.StateMachine(smNum), nil
		}
	}
}

// ReleaseStateMachine disables sm and frees it for the next claim
func (e *Engine) ReleaseStateMachine(sm core.StateMachine) {
	s, ok := sm.(*StateMachine)
	if !ok {
		return
	}
	s.sm.SetEnabled(false)
	s.sm.Unclaim()
	e.allocator.Release(e.pioNum, s.smNum)
}

// StateMachine wraps a state machine that the caller already claimed
func (e *Engine) StateMachine(smNum uint8) *StateMachine {
	e.allocator.MarkClaimed(e.pioNum, smNum)
	return &StateMachine{
		pio:   e.pio,
		sm:    e.pio.StateMachine(smNum),
		smNum: smNum,
	}
}

// LoadProgram loads the Joybus program once per block and returns its offset
func (e *Engine) LoadProgram() (uint8, error) {
	if offset, ok := e.allocator.ProgramOffset(e.pioNum); ok {
		return offset, nil
	}

	offset, err := e.pio.AddProgram(buildJoybusProgram(), joybusPIOOrigin)
	if err != nil {
		return 0, core.ErrProgramMemoryFull
	}
	e.allocator.SetProgramOffset(e.pioNum, offset)
	return offset, nil
}

// StateMachine is one PIO state machine bound to a Joybus pin
type StateMachine struct {
	pio   *rp2pio.PIO
	sm    rp2pio.StateMachine
	smNum uint8

	// Configuration cached for the last (offset, pin) pair
	cfg       rp2pio.StateMachineConfig
	cfgOffset uint8
	cfgPin    machine.Pin
	cfgReady  bool
}

// Index returns the state machine number
func (s *StateMachine) Index() uint8 {
	return s.smNum
}

// ConfigureReceive restarts the state machine at the read entry
func (s *StateMachine) ConfigureReceive(offset uint8, pin core.Pin) {
	s.init(offset, offset+joybusReadEntry, pin)
}

// ConfigureTransmit restarts the state machine at the write entry
func (s *StateMachine) ConfigureTransmit(offset uint8, pin core.Pin) {
	s.init(offset, offset+joybusWriteEntry, pin)
}

func (s *StateMachine) init(offset, entry uint8, pin core.Pin) {
	p := machine.Pin(pin)

	if !s.cfgReady || s.cfgOffset != offset || s.cfgPin != p {
		// Configure pin for PIO
		p.Configure(machine.PinConfig{Mode: s.pio.PinMode()})

		s.cfg = joybusConfig(offset, p)
		s.cfgOffset = offset
		s.cfgPin = p
		s.cfgReady = true
	}

	// Init disables the SM, clears FIFOs and shift counters, and jumps to entry
	s.sm.Init(entry, s.cfg)

	// Line idles high; the program owns the pin direction
	s.sm.SetPinsConsecutive(p, 1, true)

	s.sm.SetEnabled(true)
}

// Put writes a transmit word, waiting for FIFO space
func (s *StateMachine) Put(word uint32) {
	for s.sm.IsTxFIFOFull() {
		// Busy wait - the program drains one word every 36µs
	}
	s.sm.TxPut(word)
}

// Get reads a received word, waiting for data
func (s *StateMachine) Get() uint32 {
	for s.sm.IsRxFIFOEmpty() {
		// Busy wait
	}
	return s.sm.RxGet()
}

// IsRxFIFOEmpty reports whether no received word is pending
func (s *StateMachine) IsRxFIFOEmpty() bool {
	return s.sm.IsRxFIFOEmpty()
}
