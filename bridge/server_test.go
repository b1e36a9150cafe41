package bridge

import (
	"testing"
	"time"

	"joybus/protocol"
)

// fakePort answers every transaction with a canned reply
type fakePort struct {
	reply    []byte
	messages [][]byte
	timeouts []time.Duration
	resets   int
}

func (f *fakePort) Transact(message, response []byte, timeout time.Duration) int {
	f.messages = append(f.messages, append([]byte(nil), message...))
	f.timeouts = append(f.timeouts, timeout)
	return copy(response, f.reply)
}

func (f *fakePort) ResetReceive() {
	f.resets++
}

func requestFrame(t *testing.T, seq uint8, encode func(output protocol.OutputBuffer)) []byte {
	t.Helper()
	payload := protocol.NewScratchOutput()
	encode(payload)
	frame := protocol.NewScratchOutput()
	if err := protocol.EncodeFrame(frame, seq, payload.Result()); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return append([]byte(nil), frame.Result()...)
}

// inputOf queues data the way the firmware's USB reader does
func inputOf(data []byte) *protocol.FifoBuffer {
	input := protocol.NewFifoBuffer(512)
	input.Write(data)
	return input
}

// replies decodes every reply frame in output
func replies(t *testing.T, output *protocol.ScratchOutput) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	input := inputOf(output.Result())
	d := protocol.NewDecoder()
	for {
		frame, ok := d.Next(input)
		if !ok {
			return frames
		}
		frame.Payload = append([]byte(nil), frame.Payload...)
		frames = append(frames, frame)
	}
}

func TestServerTransact(t *testing.T) {
	port := &fakePort{reply: []byte{0x05, 0x00, 0x02}}
	server := NewServer(port)

	req := protocol.TransactRequest{Message: []byte{0x00}, ResponseLen: 3, TimeoutUS: 500}
	input := inputOf(requestFrame(t, 0x14, func(o protocol.OutputBuffer) {
		if err := req.Encode(o); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}))
	output := protocol.NewScratchOutput()

	if n := server.Process(input, output); n != 1 {
		t.Fatalf("Expected 1 request handled, got %d", n)
	}

	if len(port.messages) != 1 || port.messages[0][0] != 0x00 {
		t.Errorf("Unexpected messages %v", port.messages)
	}
	if port.timeouts[0] != 500*time.Microsecond {
		t.Errorf("Expected 500us timeout, got %v", port.timeouts[0])
	}

	frames := replies(t, output)
	if len(frames) != 1 || frames[0].Sequence != 0x14 {
		t.Fatalf("Expected one reply with seq 0x14, got %+v", frames)
	}
	payload := frames[0].Payload
	if id, _ := protocol.DecodeMessageID(&payload); id != protocol.MsgResult {
		t.Fatalf("Expected MsgResult, got %d", id)
	}
	res, err := protocol.DecodeResult(&payload)
	if err != nil {
		t.Fatalf("DecodeResult failed: %v", err)
	}
	if res.Requested != 3 || len(res.Response) != 3 || res.Response[2] != 0x02 {
		t.Errorf("Unexpected result %+v", res)
	}
	if server.Stats.Transactions != 1 || server.Stats.ShortReceives != 0 {
		t.Errorf("Unexpected stats %+v", server.Stats)
	}
}

func TestServerShortReceive(t *testing.T) {
	port := &fakePort{reply: []byte{0xAA}}
	server := NewServer(port)

	req := protocol.TransactRequest{Message: []byte{0x01}, ResponseLen: 4, TimeoutUS: 100}
	input := inputOf(requestFrame(t, 0x10, func(o protocol.OutputBuffer) {
		_ = req.Encode(o)
	}))
	output := protocol.NewScratchOutput()
	server.Process(input, output)

	payload := replies(t, output)[0].Payload
	protocol.DecodeMessageID(&payload)
	res, _ := protocol.DecodeResult(&payload)
	if !res.Short() || len(res.Response) != 1 {
		t.Errorf("Expected short result of 1 byte, got %+v", res)
	}
	if server.Stats.ShortReceives != 1 {
		t.Errorf("Expected 1 short receive, got %d", server.Stats.ShortReceives)
	}
}

func TestServerResetAndPing(t *testing.T) {
	port := &fakePort{}
	server := NewServer(port)

	var stream []byte
	stream = append(stream, requestFrame(t, 0x10, protocol.EncodeResetReceive)...)
	stream = append(stream, requestFrame(t, 0x11, func(o protocol.OutputBuffer) {
		protocol.EncodePing(o, 1234)
	})...)
	output := protocol.NewScratchOutput()

	if n := server.Process(inputOf(stream), output); n != 2 {
		t.Fatalf("Expected 2 requests handled, got %d", n)
	}
	if port.resets != 1 {
		t.Errorf("Expected 1 reset, got %d", port.resets)
	}

	frames := replies(t, output)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 replies, got %d", len(frames))
	}
	payload := frames[1].Payload
	if id, _ := protocol.DecodeMessageID(&payload); id != protocol.MsgPong {
		t.Fatalf("Expected MsgPong, got %d", id)
	}
	if token, _ := protocol.DecodeVLQUint(&payload); token != 1234 {
		t.Errorf("Expected token 1234, got %d", token)
	}
}

func TestServerErrors(t *testing.T) {
	testCases := []struct {
		name   string
		encode func(o protocol.OutputBuffer)
		code   uint32
	}{
		{
			name:   "unknown",
			encode: func(o protocol.OutputBuffer) { protocol.EncodeVLQUint(o, 0x42) },
			code:   protocol.ErrCodeUnknownMessage,
		},
		{
			name: "malformed",
			encode: func(o protocol.OutputBuffer) {
				protocol.EncodeVLQUint(o, protocol.MsgTransact)
				protocol.EncodeVLQBytes(o, []byte{0x01})
			},
			code: protocol.ErrCodeMalformed,
		},
		{
			name: "too long",
			encode: func(o protocol.OutputBuffer) {
				protocol.EncodeVLQUint(o, protocol.MsgTransact)
				protocol.EncodeVLQBytes(o, []byte{0x01})
				protocol.EncodeVLQUint(o, protocol.MaxResponseLen+1)
				protocol.EncodeVLQUint(o, 100)
			},
			code: protocol.ErrCodeTooLong,
		},
	}

	for _, tc := range testCases {
		port := &fakePort{}
		server := NewServer(port)
		output := protocol.NewScratchOutput()

		server.Process(inputOf(requestFrame(t, 0x10, tc.encode)), output)

		if len(port.messages) != 0 {
			t.Errorf("%s: port should not be used", tc.name)
		}
		payload := replies(t, output)[0].Payload
		if id, _ := protocol.DecodeMessageID(&payload); id != protocol.MsgError {
			t.Errorf("%s: expected MsgError, got %d", tc.name, id)
			continue
		}
		if code, _ := protocol.DecodeVLQUint(&payload); code != tc.code {
			t.Errorf("%s: expected code %d, got %d", tc.name, tc.code, code)
		}
	}
}

func TestServerBacksOffWhenOutputFull(t *testing.T) {
	reply := make([]byte, protocol.MaxResponseLen)
	for i := range reply {
		reply[i] = byte(i)
	}
	port := &fakePort{reply: reply}
	server := NewServer(port)

	const requests = 6
	var stream []byte
	for i := 0; i < requests; i++ {
		req := protocol.TransactRequest{Message: []byte{0x02}, ResponseLen: protocol.MaxResponseLen, TimeoutUS: 100}
		stream = append(stream, requestFrame(t, protocol.MessageDest|uint8(i), func(o protocol.OutputBuffer) {
			_ = req.Encode(o)
		})...)
	}
	input := inputOf(stream)

	var frames []protocol.Frame
	for pass := 0; pass < requests && len(frames) < requests; pass++ {
		output := protocol.NewScratchOutput()
		if n := server.Process(input, output); n == 0 {
			t.Fatalf("Pass %d handled nothing", pass)
		}
		frames = append(frames, replies(t, output)...)
	}

	if len(frames) != requests {
		t.Fatalf("Expected %d intact replies, got %d", requests, len(frames))
	}
	for i, frame := range frames {
		if frame.Sequence != protocol.MessageDest|uint8(i) {
			t.Errorf("Reply %d has seq 0x%02x", i, frame.Sequence)
		}
		payload := frame.Payload
		protocol.DecodeMessageID(&payload)
		res, err := protocol.DecodeResult(&payload)
		if err != nil || len(res.Response) != protocol.MaxResponseLen {
			t.Errorf("Reply %d damaged: %+v err=%v", i, res, err)
		}
	}
	if len(port.messages) != requests {
		t.Errorf("Expected %d transactions, got %d", requests, len(port.messages))
	}
	if server.Stats.Errors != 0 {
		t.Errorf("Expected no errors, got %d", server.Stats.Errors)
	}
}

func TestServerResetAfterFlush(t *testing.T) {
	server := NewServer(&fakePort{})

	// Garbage leaves the decoder waiting for a sync byte
	server.Process(inputOf([]byte{0x02, 0x10, 0x00, 0x00, 0x00}), protocol.NewScratchOutput())
	if server.Dropped() != 1 {
		t.Fatalf("Expected 1 dropped frame, got %d", server.Dropped())
	}
	server.Reset()

	output := protocol.NewScratchOutput()
	if n := server.Process(inputOf(requestFrame(t, 0x13, protocol.EncodeResetReceive)), output); n != 1 {
		t.Fatalf("Expected request after reset to be handled, got %d", n)
	}
}
