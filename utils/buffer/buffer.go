// Package buffer provides a growable byte buffer with independent read and write cursors.
package buffer

import (
	"fmt"
	"math"
)

const (
	// MaxSize is the largest readable size a ByteBuffer accepts. Half of the
	// largest int keeps cursor arithmetic clear of overflow.
	MaxSize = math.MaxInt / 2
	// DefaultSize is the floor capacity of a buffer that has to grow.
	DefaultSize = 256
	// _idleShrinkSize is the capacity above which an empty buffer releases its storage on Shrink.
	_idleShrinkSize = 8 * 1024
)

// noCopy may be embedded into structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ByteBuffer is a contiguous byte store with a read cursor and a write cursor.
// Bytes in [readPos, writePos) are readable, bytes in [writePos, cap) are writable.
//
// A ByteBuffer owns its storage exclusively. It must not be copied; move the
// contents to another buffer with Swap.
//
// ByteBuffer is not safe for concurrent use.
type ByteBuffer struct {
	_ noCopy

	readPos  int
	writePos int
	buf      []byte
}

// New returns a ByteBuffer holding a copy of data.
func New(data []byte) *ByteBuffer {
	b := &ByteBuffer{}
	b.Push(data)
	return b
}

// Readable returns the number of unread bytes.
func (b *ByteBuffer) Readable() int {
	return b.writePos - b.readPos
}

// Writable returns the number of bytes that can be written without growing.
func (b *ByteBuffer) Writable() int {
	return len(b.buf) - b.writePos
}

// Cap returns the capacity of the backing storage.
func (b *ByteBuffer) Cap() int {
	return len(b.buf)
}

// Empty reports whether there is nothing left to read.
func (b *ByteBuffer) Empty() bool {
	return b.readPos == b.writePos
}

// Bytes returns the unread bytes without copying. The slice aliases the
// buffer and is only valid until the next mutating call.
func (b *ByteBuffer) Bytes() []byte {
	return b.buf[b.readPos:b.writePos]
}

// WritableSlice returns the writable tail of the buffer. Bytes written there
// become readable after Produce.
func (b *ByteBuffer) WritableSlice() []byte {
	return b.buf[b.writePos:]
}

// PushAt copies data to writePos+offset without moving the write cursor.
// It returns the number of bytes copied, which is 0 when data is empty or the
// readable size would exceed MaxSize.
func (b *ByteBuffer) PushAt(data []byte, offset int) int {
	if len(data) == 0 || offset < 0 {
		return 0
	}
	// every term stays below MaxInt/2, so the subtraction cannot wrap
	if len(data) > MaxSize || offset > MaxSize-b.Readable()-len(data) {
		return 0
	}

	b.AssureSpace(offset + len(data))
	return copy(b.buf[b.writePos+offset:], data)
}

// Push appends data and advances the write cursor.
func (b *ByteBuffer) Push(data []byte) int {
	n := b.PushAt(data, 0)
	b.Produce(n)
	return n
}

// PeekAt copies up to len(dst) unread bytes starting offset bytes past the
// read cursor. The read cursor does not move.
func (b *ByteBuffer) PeekAt(dst []byte, offset int) int {
	readable := b.Readable()
	if len(dst) == 0 || offset < 0 || offset > readable {
		return 0
	}
	return copy(dst, b.buf[b.readPos+offset:b.writePos])
}

// Pop copies up to len(dst) unread bytes into dst and consumes them.
func (b *ByteBuffer) Pop(dst []byte) int {
	n := b.PeekAt(dst, 0)
	b.Consume(n)
	return n
}

// Consume discards n unread bytes. Once the buffer is empty both cursors go
// back to zero, so draining to empty never needs a compaction.
func (b *ByteBuffer) Consume(n int) {
	if n < 0 || b.readPos+n > b.writePos {
		panic(fmt.Sprintf("buffer: consume %d with %d readable", n, b.Readable()))
	}
	b.readPos += n
	if b.Empty() {
		b.Clear()
	}
}

// Produce marks n bytes past the write cursor as readable.
func (b *ByteBuffer) Produce(n int) {
	if n < 0 || b.writePos+n > len(b.buf) {
		panic(fmt.Sprintf("buffer: produce %d with %d writable", n, b.Writable()))
	}
	b.writePos += n
}

// AssureSpace makes room for at least need writable bytes, keeping all unread
// bytes. When the space already read is enough, unread bytes are moved to the
// front instead of reallocating.
func (b *ByteBuffer) AssureSpace(need int) {
	if b.Writable() >= need {
		return
	}

	oldCap := len(b.buf)
	newCap := oldCap
	for newCap-b.writePos+b.readPos < need {
		switch {
		case newCap < DefaultSize:
			newCap = DefaultSize
		case newCap > MaxSize:
			panic(fmt.Sprintf("buffer: capacity %d exceeds max size", newCap))
		default:
			if next := roundUpPow2(newCap); next > newCap {
				newCap = next
			} else {
				newCap += newCap / 2
			}
		}
	}

	readable := b.Readable()
	if newCap == oldCap {
		copy(b.buf, b.buf[b.readPos:b.writePos])
	} else {
		nbuf := make([]byte, newCap)
		copy(nbuf, b.buf[b.readPos:b.writePos])
		b.buf = nbuf
	}
	b.readPos = 0
	b.writePos = readable
}

// Shrink gives back memory the buffer no longer needs. An empty buffer above
// the idle size drops its storage. Otherwise, when less than a quarter of the
// capacity is readable, the unread bytes move into the smallest power-of-two
// storage that holds them.
func (b *ByteBuffer) Shrink() {
	if b.Empty() {
		if len(b.buf) > _idleShrinkSize {
			b.buf = nil
			b.Clear()
		}
		return
	}

	readable := b.Readable()
	if readable >= len(b.buf)/4 {
		return
	}

	nbuf := make([]byte, roundUpPow2(readable))
	copy(nbuf, b.buf[b.readPos:b.writePos])
	b.buf = nbuf
	b.readPos = 0
	b.writePos = readable
}

// Clear drops all unread bytes. The storage is kept.
func (b *ByteBuffer) Clear() {
	b.readPos = 0
	b.writePos = 0
}

// Swap exchanges the contents and storage of b and other.
func (b *ByteBuffer) Swap(other *ByteBuffer) {
	b.readPos, other.readPos = other.readPos, b.readPos
	b.writePos, other.writePos = other.writePos, b.writePos
	b.buf, other.buf = other.buf, b.buf
}

// roundUpPow2 returns the smallest power of two >= n, or 0 for n == 0.
func roundUpPow2(n int) int {
	if n <= 0 {
		return 0
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
