package core

// ResetReceive puts the port back into receive mode.
// Any partially received data is discarded.
func (p *Port) ResetReceive() {
	p.sm.ConfigureReceive(p.offset, p.pin)
	RecordEvent(EvtResetReceive, p.pin, p.now(), 0, 0)
}

// switchToTransmit puts the port into transmit mode
func (p *Port) switchToTransmit() {
	p.sm.ConfigureTransmit(p.offset, p.pin)
}

func (p *Port) now() uint32 {
	return uint32(p.clock.NowMicros())
}
