package tcp

import (
	"sync"

	"golang.org/x/sys/unix"
)

// prependSize is the fixed small prepend area every Buffer reserves at its
// front, per spec §3.
const prependSize = 8

const initialBufferSize = 1024

// Buffer is the growable byte queue of spec §3/§4.5: a contiguous region
// with prependEnd <= readIndex <= writeIndex <= capacity. Readable bytes
// are buf[readIndex:writeIndex]; writable bytes are buf[writeIndex:].
type Buffer struct {
	buf        []byte
	readIndex  int
	writeIndex int
}

// NewBuffer returns an empty Buffer with the prepend area already
// accounted for.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:        make([]byte, initialBufferSize),
		readIndex:  prependSize,
		writeIndex: prependSize,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writeIndex - b.readIndex }

// WritableBytes returns the number of bytes of spare capacity at the back.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writeIndex }

// PrependableBytes returns the slack available at the front, including the
// already-consumed read region.
func (b *Buffer) PrependableBytes() int { return b.readIndex }

// Peek returns the readable region without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.readIndex:b.writeIndex] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.readIndex = prependSize
		b.writeIndex = prependSize
		return
	}
	b.readIndex += n
}

// RetrieveAll consumes everything currently readable.
func (b *Buffer) RetrieveAll() { b.Retrieve(b.ReadableBytes()) }

// RetrieveAllAsString consumes and returns everything currently readable.
func (b *Buffer) RetrieveAllAsString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append appends data to the writable region, growing or compacting first
// if necessary (spec §4.5).
func (b *Buffer) Append(data []byte) {
	if b.WritableBytes() < len(data) {
		b.makeSpace(len(data))
	}
	b.writeIndex += copy(b.buf[b.writeIndex:], data)
}

// makeSpace implements the growth policy of spec §3: if the writable
// region plus the front slack (bytes before readIndex) can't fit needed
// bytes, grow; otherwise compact the readable region back to prependEnd.
func (b *Buffer) makeSpace(needed int) {
	if b.WritableBytes()+(b.readIndex-prependSize) < needed {
		newCap := len(b.buf) + needed - b.WritableBytes()
		grown := make([]byte, newCap)
		n := copy(grown[prependSize:], b.buf[b.readIndex:b.writeIndex])
		b.buf = grown
		b.readIndex = prependSize
		b.writeIndex = prependSize + n
	} else {
		readable := b.ReadableBytes()
		copy(b.buf[prependSize:], b.buf[b.readIndex:b.writeIndex])
		b.readIndex = prependSize
		b.writeIndex = prependSize + readable
	}
}

// ioResult is the explicit tag design notes (spec §9) ask for on fd I/O
// operations in place of overloading error for control flow.
type ioResult int

const (
	ioAgain ioResult = iota
	ioEOF
	ioError
	ioOK
)

var spillPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}

// ReadFrom performs a scatter-read from fd into the writable region plus a
// 64KB spill buffer, per spec §4.5: it loops (edge-triggered discipline,
// spec §4.9) until the kernel reports EAGAIN, appending the spill region
// into the buffer if it was used. Returns the total bytes read and the
// classification of the terminal condition.
func (b *Buffer) ReadFrom(fd int) (int, ioResult, error) {
	spillPtr := spillPool.Get().(*[]byte)
	spill := *spillPtr
	defer spillPool.Put(spillPtr)

	total := 0
	for {
		writable := b.WritableBytes()
		if writable == 0 {
			b.makeSpace(4096)
			writable = b.WritableBytes()
		}

		iov := [][]byte{b.buf[b.writeIndex : b.writeIndex+writable], spill}
		n, err := unix.Readv(fd, iov)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return total, ioAgain, nil
			}
			return total, ioError, err
		}
		if n == 0 {
			return total, ioEOF, nil
		}

		if n <= writable {
			b.writeIndex += n
		} else {
			b.writeIndex += writable
			spillUsed := n - writable
			b.Append(spill[:spillUsed])
		}
		total += n
	}
}

// WriteTo loops writing from the readable region until either the buffer
// empties, the kernel returns EAGAIN, or an error occurs (spec §4.5).
// EINTR is retried transparently.
func (b *Buffer) WriteTo(fd int) (int, ioResult, error) {
	total := 0
	for b.ReadableBytes() > 0 {
		n, err := unix.Write(fd, b.Peek())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return total, ioAgain, nil
			}
			return total, ioError, err
		}
		if n == 0 {
			return total, ioAgain, nil
		}
		b.Retrieve(n)
		total += n
	}
	return total, ioOK, nil
}
