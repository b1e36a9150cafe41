package core

// Transmit word layout consumed by the program: data in bits 31..24, the stop
// flag in bit 23. The program shifts out MSB first with a 9 bit autopull.
const (
	txDataShift = 24
	txStopShift = 23
)

// EncodeTxWord packs one byte and its stop flag into a transmit word
func EncodeTxWord(b byte, stop bool) uint32 {
	word := uint32(b) << txDataShift
	if stop {
		word |= 1 << txStopShift
	}
	return word
}

// SendBytes switches the port to transmit mode and sends data in order.
// Only the last byte carries the stop flag. The port is left in transmit mode;
// the program releases the line and starts receiving after the stop bit.
func (p *Port) SendBytes(data []byte) {
	p.switchToTransmit()

	last := len(data) - 1
	for i, b := range data {
		p.sm.Put(EncodeTxWord(b, i == last))
	}

	RecordEvent(EvtSend, p.pin, p.now(), uint32(len(data)), 0)
}

// ReceiveByte blocks until a byte is available and returns it.
// There is no timeout.
func (p *Port) ReceiveByte() byte {
	return byte(p.sm.Get())
}
