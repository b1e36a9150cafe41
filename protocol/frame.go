package protocol

import "errors"

var (
	ErrFrameLength = errors.New("frame payload too long")
	ErrOutputFull  = errors.New("no room in output buffer for frame")
)

// Frame is one decoded bridge frame
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// EncodeFrame appends a framed payload to output
func EncodeFrame(output OutputBuffer, seq uint8, payload []byte) error {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return ErrFrameLength
	}
	if output.Free() < msgLen {
		return ErrOutputFull
	}

	cursor := output.CurPosition()
	output.Output([]byte{uint8(msgLen), seq})
	output.Output(payload)

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// Decoder extracts frames from a byte stream, resynchronizing on the sync
// byte after corruption
type Decoder struct {
	unsynced bool
	payload  [MessagePayloadMax]byte

	// Dropped counts frames discarded for bad length, sequence or CRC
	Dropped uint32
}

// NewDecoder creates a new Decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Next consumes input up to and including the next valid frame.
// Returns false when input holds no complete frame; partial data is kept.
// The returned payload is valid until the next call.
func (d *Decoder) Next(input InputBuffer) (Frame, bool) {
	data := input.Data()
	original := len(data)
	defer func() {
		if consumed := original - len(data); consumed > 0 {
			input.Pop(consumed)
		}
	}()

	for len(data) > 0 {
		if d.unsynced {
			// Look for sync byte to resynchronize
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			d.unsynced = false
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.drop()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.drop()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.drop()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.drop()
			continue
		}

		n := copy(d.payload[:], data[MessageHeaderSize:msgLen-MessageTrailerSize])
		data = data[msgLen:]
		return Frame{Sequence: seq, Payload: d.payload[:n]}, true
	}

	return Frame{}, false
}

func (d *Decoder) drop() {
	d.unsynced = true
	d.Dropped++
}

// Reset forgets synchronization state, for use after the input was flushed
func (d *Decoder) Reset() {
	d.unsynced = false
}
