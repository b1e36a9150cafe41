package core

import "time"

// Transact sends message and then reads up to len(response) bytes of reply,
// returning the number received (see ReceiveBytes for the timeout policy).
//
// An empty message skips transmission: the port is reset to receive mode
// and only listens. An empty response returns 0 without reading.
func (p *Port) Transact(message, response []byte, timeout time.Duration) int {
	if len(message) > 0 {
		p.SendBytes(message)
	} else {
		if debugEnabled {
			DebugPrintln("[JOYBUS] receive only, pin=" + utoa(uint32(p.pin)))
		}
		RecordEvent(EvtReceiveOnly, p.pin, p.now(), uint32(len(response)), 0)
		p.ResetReceive()
	}

	return p.ReceiveBytes(response, timeout)
}
