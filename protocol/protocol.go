// Package protocol implements the bridge wire format spoken between the host
// tool and the Joybus firmware over USB CDC
package protocol

// Version represents the bridge protocol version
const Version = "0.1.0"

// Frame layout: len | seq | payload | crc16 (2) | sync
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	// Message sequence masks
	MessageSeqMask = 0x0F

	MessageMax = 256 // Scratch output size (several frames)
)

// NextSequence returns the host sequence number following seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
