package core

import "testing"

// fakeClock is a manually advanced microsecond clock
type fakeClock struct {
	now uint64
}

func (c *fakeClock) NowMicros() uint64 {
	return c.now
}

// rxWord is a word that lands in the RX FIFO at a given time
type rxWord struct {
	at    uint64
	value uint32
}

// fakeStateMachine simulates a state machine on a fakeClock.
// Each empty-FIFO poll costs one microsecond; a blocking Get jumps the clock
// to the arrival time of the next word.
type fakeStateMachine struct {
	t     *testing.T
	index uint8
	clock *fakeClock

	rx    []rxWord
	tx    []uint32
	modes []string // "rx" or "tx", in configuration order

	gets  int
	polls int
}

func newFakeStateMachine(t *testing.T, index uint8, clock *fakeClock) *fakeStateMachine {
	return &fakeStateMachine{t: t, index: index, clock: clock}
}

// schedule queues bytes arriving at the given absolute times
func (f *fakeStateMachine) schedule(at []uint64, values []uint32) {
	for i := range at {
		f.rx = append(f.rx, rxWord{at: at[i], value: values[i]})
	}
}

// dropArrived discards words already in the FIFO, as a restart does
func (f *fakeStateMachine) dropArrived() {
	for len(f.rx) > 0 && f.rx[0].at <= f.clock.now {
		f.rx = f.rx[1:]
	}
}

func (f *fakeStateMachine) Index() uint8 { return f.index }

func (f *fakeStateMachine) ConfigureReceive(offset uint8, pin Pin) {
	f.modes = append(f.modes, "rx")
	f.dropArrived()
}

func (f *fakeStateMachine) ConfigureTransmit(offset uint8, pin Pin) {
	f.modes = append(f.modes, "tx")
	f.dropArrived()
}

func (f *fakeStateMachine) Put(word uint32) {
	f.tx = append(f.tx, word)
}

func (f *fakeStateMachine) Get() uint32 {
	f.gets++
	if len(f.rx) == 0 {
		f.t.Fatalf("blocking Get with no data scheduled (would hang)")
	}
	next := f.rx[0]
	f.rx = f.rx[1:]
	if f.clock.now < next.at {
		f.clock.now = next.at
	}
	return next.value
}

func (f *fakeStateMachine) IsRxFIFOEmpty() bool {
	f.polls++
	if len(f.rx) > 0 && f.rx[0].at <= f.clock.now {
		return false
	}
	f.clock.now++
	return true
}

// fakeEngine hands out fake state machines up to a fixed count
type fakeEngine struct {
	index    uint8
	free     []*fakeStateMachine
	claims   int
	released []StateMachine
	loads    int
	offset   uint8
	loadErr  error
}

func (e *fakeEngine) Index() uint8 { return e.index }

func (e *fakeEngine) ClaimStateMachine() (StateMachine, error) {
	if len(e.free) == 0 {
		return nil, ErrResourceExhausted
	}
	sm := e.free[0]
	e.free = e.free[1:]
	e.claims++
	return sm, nil
}

func (e *fakeEngine) ReleaseStateMachine(sm StateMachine) {
	e.released = append(e.released, sm)
	e.free = append(e.free, sm.(*fakeStateMachine))
}

func (e *fakeEngine) LoadProgram() (uint8, error) {
	if e.loadErr != nil {
		return 0, e.loadErr
	}
	e.loads++
	return e.offset, nil
}

// newTestPort builds a port on a single fake state machine
func newTestPort(t *testing.T) (*Port, *fakeStateMachine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	sm := newFakeStateMachine(t, 0, clock)
	engine := &fakeEngine{free: []*fakeStateMachine{sm}}

	port, err := NewPort(engine, 5, WithClock(clock))
	if err != nil {
		t.Fatalf("NewPort failed: %v", err)
	}
	return port, sm, clock
}
