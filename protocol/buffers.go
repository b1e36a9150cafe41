package protocol

// InputBuffer is a queue of received bytes that frames are decoded from
type InputBuffer interface {
	// Data returns the queued bytes as one contiguous slice
	Data() []byte

	// Available returns the number of queued bytes
	Available() int

	// Pop removes n bytes from the front
	Pop(n int)
}

// OutputBuffer accumulates encoded frames
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// DataSince returns the bytes written after pos
	DataSince(pos int) []byte

	// Free returns how many more bytes fit
	Free() int
}

// ScratchOutput is a fixed-size OutputBuffer. Output past the end is
// dropped, so writers check Free first.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

func (s *ScratchOutput) Free() int {
	return len(s.buf) - s.pos
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer queues serial input. Bytes are kept contiguous: consumed space
// at the front is reclaimed by shifting the remainder down when a write needs
// room, so Data never allocates.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf: make([]byte, capacity),
	}
}

// Write appends as much of data as fits and returns the count written
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.write && f.read > 0 {
		f.compact()
	}
	n := copy(f.buf[f.write:], data)
	f.write += n
	return n
}

func (f *FifoBuffer) compact() {
	n := copy(f.buf, f.buf[f.read:f.write])
	f.read = 0
	f.write = n
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	return f.write - f.read
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available()
}

// Data returns the queued bytes. The slice is valid until the next Write.
func (f *FifoBuffer) Data() []byte {
	return f.buf[f.read:f.write]
}

// Pop removes n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if n > f.Available() {
		n = f.Available()
	}
	f.read += n
	if f.read == f.write {
		f.read, f.write = 0, 0
	}
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
