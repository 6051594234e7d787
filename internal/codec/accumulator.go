// Byte accumulation in front of the frame decoder. One accumulator per byte source
// (a peer address, or the durable log read path).
package codec

import (
	"errors"
	"fmt"
	"smarthub/pkg/frame"
)

var ErrBufferOverflow = errors.New("accumulated bytes exceed limit without a complete frame")

type Accumulator struct {
	buf         []byte
	MaxBuffered int // 0 = unbounded
}

func NewAccumulator(maxBuffered int) (acc *Accumulator) {
	acc = &Accumulator{MaxBuffered: maxBuffered}
	return
}

// Appends data and returns every frame that became complete.
// Bytes of an incomplete trailing frame stay buffered for the next call.
// On ErrMalformed or ErrBufferOverflow the offending bytes are still buffered; callers decide to Reset.
func (acc *Accumulator) Feed(data []byte) (frames []frame.Frame, err error) {
	acc.buf = append(acc.buf, data...)

	frames, rest, err := frame.DeserializeMany(acc.buf)
	acc.keep(rest)
	if err != nil {
		return
	}

	if acc.MaxBuffered > 0 && len(acc.buf) > acc.MaxBuffered {
		err = fmt.Errorf("%w: %d > %d bytes", ErrBufferOverflow, len(acc.buf), acc.MaxBuffered)
	}
	return
}

// Drops up to n bytes from the front of the buffer, returning how many were dropped
func (acc *Accumulator) Skip(n int) (dropped int) {
	dropped = min(n, len(acc.buf))
	acc.keep(acc.buf[dropped:])
	return
}

// Drops buffered bytes
func (acc *Accumulator) Reset() {
	acc.buf = nil
}

// Bytes waiting for the rest of a frame
func (acc *Accumulator) Buffered() (n int) {
	n = len(acc.buf)
	return
}

// Copies the remainder down so the backing array doesn't grow without bound
func (acc *Accumulator) keep(rest []byte) {
	if len(rest) == 0 {
		acc.buf = acc.buf[:0]
		return
	}
	if len(rest) == len(acc.buf) {
		return
	}
	acc.buf = append(acc.buf[:0], rest...)
}
