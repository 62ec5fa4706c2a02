package buffer

import "io"

// MinChunkSize is the readable size below which pushed bytes are merged into
// the last buffer of a BufferVector instead of starting a new one.
const MinChunkSize = 1024

// BufferVector is an ordered list of ByteBuffers. It batches many small
// writes into a few large ones.
type BufferVector struct {
	bufs       []*ByteBuffer
	totalBytes int
}

// Push appends buf to the vector, taking ownership of it. The contents are
// merged into the last buffer while that buffer is still small.
func (v *BufferVector) Push(buf *ByteBuffer) {
	if buf == nil || buf.Empty() {
		return
	}

	if last := v.last(); last != nil && last.Readable() < MinChunkSize {
		v.totalBytes += last.Push(buf.Bytes())
		buf.Clear()
		return
	}

	v.bufs = append(v.bufs, buf)
	v.totalBytes += buf.Readable()
}

// PushBytes copies data to the tail of the vector.
func (v *BufferVector) PushBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	if last := v.last(); last != nil && last.Readable() < MinChunkSize {
		v.totalBytes += last.Push(data)
		return
	}

	v.bufs = append(v.bufs, New(data))
	v.totalBytes += len(data)
}

// Pop removes and returns the first buffer, or nil when the vector is empty.
func (v *BufferVector) Pop() *ByteBuffer {
	if len(v.bufs) == 0 {
		return nil
	}

	buf := v.bufs[0]
	v.bufs[0] = nil
	v.bufs = v.bufs[1:]
	v.totalBytes -= buf.Readable()
	return buf
}

// TotalBytes returns the readable bytes summed over every buffer.
func (v *BufferVector) TotalBytes() int {
	return v.totalBytes
}

// Len returns the number of buffers.
func (v *BufferVector) Len() int {
	return len(v.bufs)
}

// Empty reports whether the vector holds no bytes.
func (v *BufferVector) Empty() bool {
	return v.totalBytes == 0
}

// Clear drops every buffer.
func (v *BufferVector) Clear() {
	clear(v.bufs)
	v.bufs = v.bufs[:0]
	v.totalBytes = 0
}

// Each calls fn with the unread bytes of every buffer in order. It stops at
// the first false return.
func (v *BufferVector) Each(fn func([]byte) bool) {
	for _, buf := range v.bufs {
		if !fn(buf.Bytes()) {
			return
		}
	}
}

// WriteTo writes every buffer to w in order and clears the vector. On error
// the bytes not yet written are dropped as well.
func (v *BufferVector) WriteTo(w io.Writer) (int64, error) {
	var total int64
	defer v.Clear()

	for _, buf := range v.bufs {
		n, err := w.Write(buf.Bytes())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (v *BufferVector) last() *ByteBuffer {
	if len(v.bufs) == 0 {
		return nil
	}
	return v.bufs[len(v.bufs)-1]
}
