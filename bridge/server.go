// Package bridge serves Joybus transactions requested over the bridge protocol.
// It runs in the firmware main loop, between the USB input buffer and a port.
package bridge

import (
	"time"

	"joybus/core"
	"joybus/protocol"
)

// Transactor is the port operation set the bridge needs; *core.Port implements it
type Transactor interface {
	Transact(message, response []byte, timeout time.Duration) int
	ResetReceive()
}

// Stats counts served requests
type Stats struct {
	Transactions  uint32
	ShortReceives uint32
	Errors        uint32
}

// Server decodes request frames and answers each with one reply frame
type Server struct {
	port     Transactor
	decoder  *protocol.Decoder
	payload  *protocol.ScratchOutput
	response [protocol.MaxResponseLen]byte

	Stats Stats
}

// NewServer creates a Server driving port
func NewServer(port Transactor) *Server {
	return &Server{
		port:    port,
		decoder: protocol.NewDecoder(),
		payload: protocol.NewScratchOutput(),
	}
}

// Process handles complete requests in input and writes the replies to
// output. It stops while output has no room for a full reply, leaving the
// remaining requests queued. Returns the number of requests handled.
func (s *Server) Process(input protocol.InputBuffer, output protocol.OutputBuffer) int {
	handled := 0
	for {
		if output.Free() < protocol.MessageLengthMax {
			return handled
		}
		frame, ok := s.decoder.Next(input)
		if !ok {
			return handled
		}

		s.payload.Reset()
		s.dispatch(frame.Payload)

		if err := protocol.EncodeFrame(output, frame.Sequence, s.payload.Result()); err != nil {
			s.Stats.Errors++
		}
		handled++
	}
}

// Reset drops decoder state after the input buffer was flushed
func (s *Server) Reset() {
	s.decoder.Reset()
}

// Dropped returns the number of corrupt frames discarded so far
func (s *Server) Dropped() uint32 {
	return s.decoder.Dropped
}

func (s *Server) dispatch(payload []byte) {
	id, err := protocol.DecodeMessageID(&payload)
	if err != nil {
		s.fail(protocol.ErrCodeMalformed, "[BRIDGE] malformed message id")
		return
	}

	switch id {
	case protocol.MsgTransact:
		req, err := protocol.DecodeTransactRequest(&payload)
		if err == protocol.ErrMessageTooLong || err == protocol.ErrResponseTooLong {
			s.fail(protocol.ErrCodeTooLong, "[BRIDGE] transact too long")
			return
		}
		if err != nil {
			s.fail(protocol.ErrCodeMalformed, "[BRIDGE] malformed transact")
			return
		}
		s.transact(req)

	case protocol.MsgResetReceive:
		s.port.ResetReceive()
		res := protocol.Result{}
		res.Encode(s.payload)

	case protocol.MsgPing:
		token, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			s.fail(protocol.ErrCodeMalformed, "[BRIDGE] malformed ping")
			return
		}
		protocol.EncodePong(s.payload, token)

	default:
		s.fail(protocol.ErrCodeUnknownMessage, "[BRIDGE] unknown message")
	}
}

func (s *Server) transact(req protocol.TransactRequest) {
	response := s.response[:req.ResponseLen]
	n := s.port.Transact(req.Message, response, core.TimerFromUS(req.TimeoutUS))

	s.Stats.Transactions++
	if uint32(n) < req.ResponseLen {
		s.Stats.ShortReceives++
	}

	res := protocol.Result{Requested: req.ResponseLen, Response: response[:n]}
	res.Encode(s.payload)
}

// fail replaces any partial reply with an error reply.
// The note goes out asynchronously so the USB loop is not held up by UART.
func (s *Server) fail(code uint32, note string) {
	s.Stats.Errors++
	core.DebugAsync(note)
	s.payload.Reset()
	protocol.EncodeError(s.payload, code)
}
