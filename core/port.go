// Package core implements the Joybus host transport: byte framing, mode
// switching and timeout-governed reads on top of a state machine that handles
// the bit-level line encoding.
package core

// noCopy may be embedded in structs that must not be copied after first use.
// go vet's copylocks check reports copies of it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Port is an exclusively owned Joybus port: one state machine driving one pin.
// A Port is not safe for concurrent use; callers must serialize transactions.
type Port struct {
	_ noCopy

	pin    Pin
	engine Engine
	sm     StateMachine
	offset uint8
	clock  Clock
}

type portConfig struct {
	sm        StateMachine
	offset    uint8
	hasOffset bool
	clock     Clock
}

// PortOption customizes NewPort
type PortOption func(*portConfig)

// WithStateMachine uses an already claimed state machine instead of claiming one
func WithStateMachine(sm StateMachine) PortOption {
	return func(c *portConfig) {
		c.sm = sm
	}
}

// WithProgramOffset uses a program already loaded at offset.
// This lets several ports on one engine share a single copy of the program.
func WithProgramOffset(offset uint8) PortOption {
	return func(c *portConfig) {
		c.offset = offset
		c.hasOffset = true
	}
}

// WithClock sets the time source used for inter-byte timeouts
func WithClock(clock Clock) PortOption {
	return func(c *portConfig) {
		c.clock = clock
	}
}

// NewPort binds a Joybus port to pin on engine and leaves it in receive mode.
// Without options it claims a free state machine and loads (or reuses) the
// engine's program.
func NewPort(engine Engine, pin Pin, opts ...PortOption) (*Port, error) {
	cfg := portConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = SystemClock()
	}

	claimed := false
	if cfg.sm == nil {
		sm, err := engine.ClaimStateMachine()
		if err != nil {
			return nil, err
		}
		cfg.sm = sm
		claimed = true
	}

	if !cfg.hasOffset {
		offset, err := engine.LoadProgram()
		if err != nil {
			// Only give back what this call claimed
			if claimed {
				engine.ReleaseStateMachine(cfg.sm)
			}
			return nil, err
		}
		cfg.offset = offset
	}

	p := &Port{
		pin:    pin,
		engine: engine,
		sm:     cfg.sm,
		offset: cfg.offset,
		clock:  cfg.clock,
	}
	p.ResetReceive()

	if debugEnabled {
		DebugPrintln("[JOYBUS] port pin=" + utoa(uint32(pin)) +
			" pio=" + utoa(uint32(engine.Index())) +
			" sm=" + utoa(uint32(p.sm.Index())) +
			" offset=" + utoa(uint32(p.offset)))
	}

	return p, nil
}

// Pin returns the GPIO pin driven by the port
func (p *Port) Pin() Pin {
	return p.pin
}

// EngineIndex returns the PIO block the port's state machine belongs to
func (p *Port) EngineIndex() uint8 {
	return p.engine.Index()
}

// StateMachineIndex returns the port's state machine number
func (p *Port) StateMachineIndex() uint8 {
	return p.sm.Index()
}

// Offset returns the instruction memory offset of the loaded program
func (p *Port) Offset() uint8 {
	return p.offset
}
