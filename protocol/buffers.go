package protocol

// InputBuffer is the receive side handed to Transport.Receive.
type InputBuffer interface {
	// Data returns the unread bytes as one contiguous slice.
	Data() []byte

	// Available returns the number of unread bytes.
	Available() int

	// Pop discards n bytes from the front.
	Pop(n int)
}

// OutputBuffer collects encoded bytes.
type OutputBuffer interface {
	Output(data []byte)
}

// SliceInputBuffer is an InputBuffer over a fixed slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte { return s.data }

func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-size OutputBuffer used to build one payload.
// Bytes past ScratchMax are dropped.
type ScratchOutput struct {
	buf [ScratchMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

// Result returns the bytes written so far.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

func (s *ScratchOutput) Len() int { return s.pos }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a ring buffer for serial input.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a ring holding up to capacity-1 bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written.
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		n++
	}
	return n
}

func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns unread bytes. A wrapped ring is copied into a fresh slice.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	out := make([]byte, 0, f.Available())
	out = append(out, f.buf[f.read:]...)
	return append(out, f.buf[:f.write]...)
}

func (f *FifoBuffer) Pop(n int) {
	if n > f.Available() {
		n = f.Available()
	}
	f.read = (f.read + n) % len(f.buf)
}

func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
