package core

import "time"

// Clock is a monotonic microsecond time source
type Clock interface {
	NowMicros() uint64
}

// Deadline is an absolute point on a Clock, in microseconds
type Deadline uint64

// MakeDeadline returns the deadline timeout from now
func MakeDeadline(clock Clock, timeout time.Duration) Deadline {
	return Deadline(clock.NowMicros() + TimerToUS(timeout))
}

// Reached reports whether the deadline has passed
func (d Deadline) Reached(clock Clock) bool {
	return clock.NowMicros() >= uint64(d)
}

// TimerToUS converts a duration to whole microseconds, clamping negatives to 0
func TimerToUS(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}

// TimerFromUS converts microseconds to a duration
func TimerFromUS(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}

type systemClock struct {
	boot time.Time
}

// SystemClock returns a Clock backed by the runtime monotonic timer.
// On RP2040 this is the 1 MHz hardware timer.
func SystemClock() Clock {
	return systemClock{boot: time.Now()}
}

func (c systemClock) NowMicros() uint64 {
	return uint64(time.Since(c.boot) / time.Microsecond)
}
