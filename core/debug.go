package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a bus event for post-mortem analysis
type Event struct {
	EventType uint8  // Event type code
	Pin       Pin    // Port pin
	Clock     uint32 // Port clock at event (µs)
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSend         = 1 // Bytes queued for transmit (v1=count)
	EvtResetReceive = 2 // Port reset to receive mode
	EvtReceiveOnly  = 3 // Transaction without message (v1=requested)
	EvtReceive      = 4 // Full receive (v1=received, v2=requested)
	EvtShortReceive = 5 // Inter-byte timeout (v1=received, v2=requested)
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event capture ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8
	eventsEnabled bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetEventsEnabled turns event capture on or off
func SetEventsEnabled(enabled bool) {
	eventsEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output.
// Drops the message if the channel is full.
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent captures an event in the ring buffer.
// Never blocks or allocates.
func RecordEvent(eventType uint8, pin Pin, clock, value1, value2 uint32) {
	if !eventsEnabled {
		return
	}
	idx := eventRingHead
	eventRing[idx] = Event{
		EventType: eventType,
		Pin:       pin,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the captured events, oldest first
func Events() []Event {
	events := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtSend:
		return "SEND"
	case EvtResetReceive:
		return "RESET_RX"
	case EvtReceiveOnly:
		return "RX_ONLY"
	case EvtReceive:
		return "RX"
	case EvtShortReceive:
		return "RX_SHORT"
	default:
		return "UNKNOWN"
	}
}

// DumpEvents outputs the event ring through the debug writer
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENTS] " + eventName(evt.EventType) +
			" pin=" + utoa(uint32(evt.Pin)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}
