// Package client drives a Joybus bridge firmware from a PC.
// Each request is framed, written to the serial port and matched to the reply
// carrying the same sequence number.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"joybus/host/serial"
	"joybus/protocol"
)

var (
	ErrTimeout  = errors.New("timed out waiting for bridge reply")
	ErrSequence = errors.New("bridge replies out of sequence")
	ErrRemote   = errors.New("bridge rejected request")
	ErrClosed   = errors.New("client closed")
)

// DefaultReplyTimeout bounds the wait for one reply. The firmware waits
// without limit for the first response byte, so this is the only bound on a
// silent device.
const DefaultReplyTimeout = time.Second

// MaxTransactTimeout is the longest inter-byte timeout the wire format carries
const MaxTransactTimeout = time.Duration(math.MaxUint32) * time.Microsecond

// Option configures a Client
type Option func(*Client)

// WithReplyTimeout overrides DefaultReplyTimeout
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.replyTimeout = d
	}
}

// WithLogger sets the logger used for frame tracing
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client issues bridge requests one at a time
type Client struct {
	port         serial.Port
	replyTimeout time.Duration
	logger       *slog.Logger

	// Serializes requests; guards seq
	mu  sync.Mutex
	seq uint8

	input   *protocol.FifoBuffer
	decoder *protocol.Decoder
	replies chan protocol.Frame

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// New starts a client on an open port. The client owns the port.
func New(port serial.Port, opts ...Option) *Client {
	c := &Client{
		port:         port,
		replyTimeout: DefaultReplyTimeout,
		logger:       slog.Default(),
		seq:          protocol.MessageDest,
		input:        protocol.NewFifoBuffer(512),
		decoder:      protocol.NewDecoder(),
		replies:      make(chan protocol.Frame, 8),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()

	return c
}

// Dial opens the serial device described by cfg and starts a client on it
func Dial(cfg *serial.Config, opts ...Option) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return New(port, opts...), nil
}

// Transact runs one Joybus transaction on the firmware's port: message is
// sent, then up to responseLen bytes are received with timeout as the
// inter-byte bound, clamped to MaxTransactTimeout. A short result is not an
// error.
func (c *Client) Transact(ctx context.Context, message []byte, responseLen int, timeout time.Duration) (protocol.Result, error) {
	if responseLen < 0 {
		return protocol.Result{}, fmt.Errorf("negative response length %d", responseLen)
	}
	timeout = min(max(timeout, 0), MaxTransactTimeout)
	req := protocol.TransactRequest{
		Message:     message,
		ResponseLen: uint32(responseLen),
		TimeoutUS:   uint32(timeout / time.Microsecond),
	}

	payload, err := c.request(ctx, req.Encode)
	if err != nil {
		return protocol.Result{}, err
	}
	return decodeResult(payload)
}

// ResetReceive returns the firmware's port to receive mode
func (c *Client) ResetReceive(ctx context.Context) error {
	payload, err := c.request(ctx, func(output protocol.OutputBuffer) error {
		protocol.EncodeResetReceive(output)
		return nil
	})
	if err != nil {
		return err
	}
	_, err = decodeResult(payload)
	return err
}

// Ping checks that the firmware is serving requests
func (c *Client) Ping(ctx context.Context, token uint32) error {
	payload, err := c.request(ctx, func(output protocol.OutputBuffer) error {
		protocol.EncodePing(output, token)
		return nil
	})
	if err != nil {
		return err
	}

	id, err := protocol.DecodeMessageID(&payload)
	if err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	if id == protocol.MsgError {
		return remoteError(payload)
	}
	if id != protocol.MsgPong {
		return fmt.Errorf("unexpected reply 0x%02x to ping", id)
	}

	echoed, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return fmt.Errorf("failed to decode pong: %w", err)
	}
	if echoed != token {
		return fmt.Errorf("pong token mismatch: sent %d, got %d", token, echoed)
	}
	return nil
}

// Close stops the read loop and closes the port
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopChan)
		err = c.port.Close()
		<-c.doneChan
	})
	return err
}

// request frames one payload, writes it and waits for the matching reply
func (c *Client) request(ctx context.Context, encode func(output protocol.OutputBuffer) error) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := protocol.NewScratchOutput()
	if err := encode(payload); err != nil {
		return nil, err
	}

	frame := protocol.NewScratchOutput()
	seq := c.seq
	if err := protocol.EncodeFrame(frame, seq, payload.Result()); err != nil {
		return nil, err
	}

	c.logger.Debug("bridge request", "seq", seq, "frame", fmt.Sprintf("% x", frame.Result()))

	msg := frame.Result()
	n, err := c.port.Write(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if n != len(msg) {
		return nil, fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	c.seq = protocol.NextSequence(c.seq)

	return c.waitReply(ctx, seq)
}

// waitReply discards stale replies until one carries seq
func (c *Client) waitReply(ctx context.Context, seq uint8) ([]byte, error) {
	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()

	stale := 0
	for {
		select {
		case reply := <-c.replies:
			if reply.Sequence != seq {
				stale++
				c.logger.Debug("discarding stale reply", "want", seq, "got", reply.Sequence)
				continue
			}
			c.logger.Debug("bridge reply", "seq", reply.Sequence, "payload", fmt.Sprintf("% x", reply.Payload))
			return reply.Payload, nil

		case <-timer.C:
			if stale > 0 {
				return nil, fmt.Errorf("%w: %d stale replies while waiting for 0x%02x", ErrSequence, stale, seq)
			}
			return nil, fmt.Errorf("%w after %v", ErrTimeout, c.replyTimeout)

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-c.doneChan:
			return nil, ErrClosed
		}
	}
}

// readLoop continuously reads from the port and queues decoded replies
func (c *Client) readLoop() {
	defer close(c.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		n, err := c.port.Read(buffer)
		if n > 0 {
			c.input.Write(buffer[:n])
			c.dispatch()
		}
		if err != nil {
			// Serial read timeouts surface as io.EOF; keep polling until closed
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("serial read failed", "error", err)
			}
			select {
			case <-c.stopChan:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// dispatch decodes every complete frame in the input buffer
func (c *Client) dispatch() {
	for {
		frame, ok := c.decoder.Next(c.input)
		if !ok {
			return
		}
		frame.Payload = append([]byte(nil), frame.Payload...)

		select {
		case c.replies <- frame:
		default:
			// Nobody is waiting; drop the oldest
			select {
			case <-c.replies:
			default:
			}
			c.replies <- frame
		}
	}
}

func decodeResult(payload []byte) (protocol.Result, error) {
	id, err := protocol.DecodeMessageID(&payload)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	if id == protocol.MsgError {
		return protocol.Result{}, remoteError(payload)
	}
	if id != protocol.MsgResult {
		return protocol.Result{}, fmt.Errorf("unexpected reply 0x%02x", id)
	}

	res, err := protocol.DecodeResult(&payload)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return res, nil
}

func remoteError(args []byte) error {
	code, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return fmt.Errorf("%w: undecodable error code", ErrRemote)
	}
	switch code {
	case protocol.ErrCodeUnknownMessage:
		return fmt.Errorf("%w: unknown message", ErrRemote)
	case protocol.ErrCodeMalformed:
		return fmt.Errorf("%w: malformed request", ErrRemote)
	case protocol.ErrCodeTooLong:
		return fmt.Errorf("%w: request too long", ErrRemote)
	}
	return fmt.Errorf("%w: code %d", ErrRemote, code)
}
