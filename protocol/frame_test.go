package protocol

import "testing"

func encodeTestFrame(t *testing.T, seq uint8, payload []byte) []byte {
	t.Helper()
	output := NewScratchOutput()
	if err := EncodeFrame(output, seq, payload); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return append([]byte(nil), output.Result()...)
}

func TestEncodeFrameLayout(t *testing.T) {
	frame := encodeTestFrame(t, 0x12, []byte{0x03, 0x07})

	if len(frame) != 7 {
		t.Fatalf("Expected 7 byte frame, got %d", len(frame))
	}
	if frame[0] != 7 || frame[1] != 0x12 {
		t.Errorf("Unexpected header %X", frame[:2])
	}
	crc := CRC16(frame[:4])
	if frame[4] != byte(crc>>8) || frame[5] != byte(crc) {
		t.Errorf("CRC mismatch: frame has %02X%02X, expected %04X", frame[4], frame[5], crc)
	}
	if frame[6] != MessageValueSync {
		t.Errorf("Expected trailing sync, got 0x%02X", frame[6])
	}
}

func TestEncodeFrameTooLong(t *testing.T) {
	output := NewScratchOutput()
	err := EncodeFrame(output, MessageDest, make([]byte, MessagePayloadMax+1))
	if err != ErrFrameLength {
		t.Errorf("Expected ErrFrameLength, got %v", err)
	}
	if output.CurPosition() != 0 {
		t.Errorf("Nothing should be written on error, got %d bytes", output.CurPosition())
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	var stream []byte
	stream = append(stream, encodeTestFrame(t, 0x10, []byte{0x01, 0x02})...)
	stream = append(stream, encodeTestFrame(t, 0x11, []byte{0x03})...)

	input := fifoOf(stream)
	d := NewDecoder()

	frame, ok := d.Next(input)
	if !ok || frame.Sequence != 0x10 || len(frame.Payload) != 2 || frame.Payload[1] != 0x02 {
		t.Fatalf("First frame mismatch: ok=%v frame=%+v", ok, frame)
	}

	frame, ok = d.Next(input)
	if !ok || frame.Sequence != 0x11 || len(frame.Payload) != 1 || frame.Payload[0] != 0x03 {
		t.Fatalf("Second frame mismatch: ok=%v frame=%+v", ok, frame)
	}

	if _, ok := d.Next(input); ok {
		t.Error("Expected no more frames")
	}
	if input.Available() != 0 {
		t.Errorf("Expected input fully consumed, %d bytes left", input.Available())
	}
}

func TestDecoderPartialFrame(t *testing.T) {
	full := encodeTestFrame(t, 0x10, []byte{0x01, 0x02, 0x03})
	fifo := NewFifoBuffer(64)
	d := NewDecoder()

	fifo.Write(full[:4])
	if _, ok := d.Next(fifo); ok {
		t.Fatal("Decoded a frame from partial data")
	}
	if fifo.Available() != 4 {
		t.Fatalf("Partial data must be kept, %d bytes left", fifo.Available())
	}

	fifo.Write(full[4:])
	frame, ok := d.Next(fifo)
	if !ok || len(frame.Payload) != 3 {
		t.Fatalf("Expected frame after completing data: ok=%v frame=%+v", ok, frame)
	}
}

func TestDecoderResyncAfterCorruption(t *testing.T) {
	bad := encodeTestFrame(t, 0x10, []byte{0x01, 0x02})
	bad[2] ^= 0xFF // break the CRC
	good := encodeTestFrame(t, 0x11, []byte{0x09})

	stream := append([]byte{0x00, 0x42}, bad...)
	stream = append(stream, good...)

	d := NewDecoder()
	frame, ok := d.Next(fifoOf(stream))
	if !ok {
		t.Fatal("Expected decoder to recover the good frame")
	}
	if frame.Sequence != 0x11 || frame.Payload[0] != 0x09 {
		t.Errorf("Recovered wrong frame %+v", frame)
	}
	if d.Dropped == 0 {
		t.Error("Expected dropped frame count to increase")
	}
}

func TestNextSequence(t *testing.T) {
	if NextSequence(0x10) != 0x11 {
		t.Errorf("Expected 0x11, got 0x%02X", NextSequence(0x10))
	}
	if NextSequence(0x1F) != 0x10 {
		t.Errorf("Expected wrap to 0x10, got 0x%02X", NextSequence(0x1F))
	}
}

func TestEncodeFrameOutputFull(t *testing.T) {
	output := NewScratchOutput()
	output.Output(make([]byte, MessageMax-MessageLengthMin))

	err := EncodeFrame(output, 0x10, []byte{0x01})
	if err != ErrOutputFull {
		t.Fatalf("Expected ErrOutputFull, got %v", err)
	}
	if output.CurPosition() != MessageMax-MessageLengthMin {
		t.Errorf("A rejected frame must not write anything, position %d", output.CurPosition())
	}

	// Exactly enough room
	output.Reset()
	output.Output(make([]byte, MessageMax-MessageLengthMin))
	if err := EncodeFrame(output, 0x10, nil); err != nil {
		t.Errorf("Frame that fits exactly failed: %v", err)
	}
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()

	// A bad length byte leaves the decoder hunting for a sync byte
	d.Next(fifoOf([]byte{0x02, 0x10, 0x00, 0x00, 0x00}))
	if d.Dropped != 1 {
		t.Fatalf("Expected 1 dropped frame, got %d", d.Dropped)
	}

	d.Reset()
	frame, ok := d.Next(fifoOf(encodeTestFrame(t, 0x12, []byte{0x07})))
	if !ok || frame.Sequence != 0x12 {
		t.Errorf("Expected frame after reset without a leading sync byte, got ok=%v %+v", ok, frame)
	}
}
