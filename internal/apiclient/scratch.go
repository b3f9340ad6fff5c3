package apiclient

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrOverflow is returned when a write would exceed a Scratch buffer.
	ErrOverflow = errors.New("scratch buffer overflow")
	// ErrResponseTooLarge means the server sent more than the response buffer holds.
	ErrResponseTooLarge = errors.New("response exceeds buffer")
)

// Scratch is a fixed-capacity byte buffer owned by one fetch. A write that
// does not fit empties the buffer and fails.
type Scratch struct {
	buf []byte
}

// NewScratch allocates a buffer holding at most capacity bytes.
func NewScratch(capacity int) *Scratch {
	return &Scratch{buf: make([]byte, 0, capacity)}
}

func (s *Scratch) Len() int      { return len(s.buf) }
func (s *Scratch) Cap() int      { return cap(s.buf) }
func (s *Scratch) Bytes() []byte { return s.buf }
func (s *Scratch) String() string {
	return string(s.buf)
}
func (s *Scratch) Reset() { s.buf = s.buf[:0] }

// Write appends p or, if it does not fit, resets the buffer.
func (s *Scratch) Write(p []byte) (int, error) {
	if need := len(s.buf) + len(p); need > cap(s.buf) {
		s.Reset()
		return 0, errors.Wrapf(ErrOverflow, "need %d bytes, capacity %d", need, cap(s.buf))
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *Scratch) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Printf formats into the buffer with the same overflow rule as Write.
func (s *Scratch) Printf(format string, args ...interface{}) error {
	_, err := s.WriteString(fmt.Sprintf(format, args...))
	return err
}

// ReadFrom fills the buffer from r. A reader with more data than the
// remaining capacity yields ErrResponseTooLarge and an empty buffer.
func (s *Scratch) ReadFrom(r io.Reader) (int64, error) {
	room := int64(cap(s.buf) - len(s.buf))
	start := len(s.buf)
	var total int64
	lr := io.LimitReader(r, room+1)
	for {
		if len(s.buf) == cap(s.buf) {
			// one extra byte decides between exactly full and truncated
			var peek [1]byte
			n, err := lr.Read(peek[:])
			if n > 0 {
				s.Reset()
				return total, errors.Wrapf(ErrResponseTooLarge, "capacity %d", cap(s.buf))
			}
			if err == io.EOF {
				return total, nil
			}
			if err != nil {
				s.buf = s.buf[:start]
				return total, err
			}
			continue
		}
		n, err := lr.Read(s.buf[len(s.buf):cap(s.buf)])
		s.buf = s.buf[:len(s.buf)+n]
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			s.buf = s.buf[:start]
			return total, err
		}
	}
}
