package protocol

import "errors"

var (
	ErrUnknownMessage  = errors.New("unknown message id")
	ErrMessageTooLong  = errors.New("joybus message too long")
	ErrResponseTooLong = errors.New("joybus response length too long")
)

// Message IDs. Replies set the high bit of the request ID.
const (
	MsgTransact     = 0x01 // message: bytes, response_len: uint, timeout_us: uint
	MsgResetReceive = 0x02
	MsgPing         = 0x03 // token: uint

	MsgResult = 0x81 // requested: uint, response: bytes
	MsgPong   = 0x83 // token: uint
	MsgError  = 0xFF // code: uint
)

// Error codes carried by MsgError
const (
	ErrCodeUnknownMessage = 1
	ErrCodeMalformed      = 2
	ErrCodeTooLong        = 3
)

// Size limits that keep every request and reply inside one frame.
// The longest Joybus exchanges (pak write / pak read) need 35 and 33 bytes.
const (
	MaxMessageLen  = 40
	MaxResponseLen = 40
)

// TransactRequest asks the firmware to run one Joybus transaction
type TransactRequest struct {
	Message     []byte
	ResponseLen uint32
	TimeoutUS   uint32
}

// Encode writes the request payload, including its message ID
func (r *TransactRequest) Encode(output OutputBuffer) error {
	if len(r.Message) > MaxMessageLen {
		return ErrMessageTooLong
	}
	if r.ResponseLen > MaxResponseLen {
		return ErrResponseTooLong
	}
	EncodeVLQUint(output, MsgTransact)
	EncodeVLQBytes(output, r.Message)
	EncodeVLQUint(output, r.ResponseLen)
	EncodeVLQUint(output, r.TimeoutUS)
	return nil
}

// DecodeTransactRequest decodes the arguments following MsgTransact.
// The returned Message aliases args.
func DecodeTransactRequest(args *[]byte) (TransactRequest, error) {
	var r TransactRequest
	var err error

	if r.Message, err = DecodeVLQBytes(args); err != nil {
		return r, err
	}
	if r.ResponseLen, err = DecodeVLQUint(args); err != nil {
		return r, err
	}
	if r.TimeoutUS, err = DecodeVLQUint(args); err != nil {
		return r, err
	}
	if len(r.Message) > MaxMessageLen {
		return r, ErrMessageTooLong
	}
	if r.ResponseLen > MaxResponseLen {
		return r, ErrResponseTooLong
	}
	return r, nil
}

// Result reports the bytes received by a transaction.
// len(Response) < Requested means the responder stopped early.
type Result struct {
	Requested uint32
	Response  []byte
}

// Short reports whether fewer bytes arrived than were requested
func (r *Result) Short() bool {
	return uint32(len(r.Response)) < r.Requested
}

// Encode writes the result payload, including its message ID
func (r *Result) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgResult)
	EncodeVLQUint(output, r.Requested)
	EncodeVLQBytes(output, r.Response)
}

// DecodeResult decodes the arguments following MsgResult
func DecodeResult(args *[]byte) (Result, error) {
	var r Result
	var err error

	if r.Requested, err = DecodeVLQUint(args); err != nil {
		return r, err
	}
	if r.Response, err = DecodeVLQBytes(args); err != nil {
		return r, err
	}
	return r, nil
}

// EncodeResetReceive writes a reset_receive request
func EncodeResetReceive(output OutputBuffer) {
	EncodeVLQUint(output, MsgResetReceive)
}

// EncodePing writes a ping request
func EncodePing(output OutputBuffer, token uint32) {
	EncodeVLQUint(output, MsgPing)
	EncodeVLQUint(output, token)
}

// EncodePong writes a pong reply
func EncodePong(output OutputBuffer, token uint32) {
	EncodeVLQUint(output, MsgPong)
	EncodeVLQUint(output, token)
}

// EncodeError writes an error reply
func EncodeError(output OutputBuffer, code uint32) {
	EncodeVLQUint(output, MsgError)
	EncodeVLQUint(output, code)
}

// DecodeMessageID reads the message ID at the start of a payload
func DecodeMessageID(payload *[]byte) (uint32, error) {
	return DecodeVLQUint(payload)
}
