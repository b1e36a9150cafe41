package core

import "time"

// ReceiveBytes reads up to len(buf) bytes and returns how many were received.
//
// The first byte is waited for without limit. Each later byte must arrive
// within timeout of the previous one; otherwise the read stops and the count
// so far is returned. A short count is a normal result, not an error: the bus
// has no end-of-message marker. Only buf[:n] is written.
func (p *Port) ReceiveBytes(buf []byte, timeout time.Duration) int {
	n := 0
	for n < len(buf) {
		if n > 0 {
			// Keep this loop free of allocations: the RX FIFO is four words deep.
			deadline := MakeDeadline(p.clock, timeout)
			for p.sm.IsRxFIFOEmpty() {
				if deadline.Reached(p.clock) {
					RecordEvent(EvtShortReceive, p.pin, p.now(), uint32(n), uint32(len(buf)))
					return n
				}
			}
		}

		buf[n] = p.ReceiveByte()
		n++
	}

	if n > 0 {
		RecordEvent(EvtReceive, p.pin, p.now(), uint32(n), uint32(len(buf)))
	}
	return n
}

// ReceiveByteTimeout assembles one byte from eight single-bit RX words,
// least significant bit first. The first bit is waited for without limit;
// ok is false if a later bit does not arrive within timeout.
//
// Experimental: it expects the program to push after every bit, which the
// byte-oriented receive configuration does not do.
func (p *Port) ReceiveByteTimeout(timeout time.Duration) (b byte, ok bool) {
	for bit := 0; bit < 8; bit++ {
		if bit > 0 {
			deadline := MakeDeadline(p.clock, timeout)
			for p.sm.IsRxFIFOEmpty() {
				if deadline.Reached(p.clock) {
					return 0, false
				}
			}
		}

		b |= byte(p.sm.Get()&0x01) << bit
	}
	return b, true
}
