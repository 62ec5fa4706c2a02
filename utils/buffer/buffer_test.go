package buffer

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBufferPushPop(t *testing.T) {
	var b ByteBuffer
	assert.True(t, b.Empty())
	assert.Equal(t, 0, b.Cap())

	assert.Equal(t, 5, b.Push([]byte("hello")))
	assert.Equal(t, 6, b.Push([]byte("world\n")))
	assert.Equal(t, 11, b.Readable())
	assert.Equal(t, DefaultSize, b.Cap())

	dst := make([]byte, 5)
	assert.Equal(t, 5, b.Pop(dst))
	assert.Equal(t, "hello", string(dst))
	assert.Equal(t, 6, b.Readable())

	rest := make([]byte, 32)
	n := b.Pop(rest)
	assert.Equal(t, "world\n", string(rest[:n]))
	assert.True(t, b.Empty())
}

func TestByteBufferPeekAt(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("hello"))
	b.Push([]byte("world\n"))

	dst := make([]byte, 5)
	require.Equal(t, 5, b.PeekAt(dst, 5))
	assert.Equal(t, "world", string(dst))

	require.Equal(t, 5, b.PeekAt(dst, 6))
	assert.Equal(t, "orld\n", string(dst))

	// peek 不移动读指针
	assert.Equal(t, 11, b.Readable())

	assert.Equal(t, 0, b.PeekAt(dst, 12))
	assert.Equal(t, 0, b.PeekAt(dst, -1))
	assert.Equal(t, 0, b.PeekAt(nil, 0))
}

func TestByteBufferSmallKeepsDefaultCap(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("hello "))
	b.Push([]byte("world\n"))
	assert.Equal(t, 256, b.Cap())
	assert.Equal(t, "hello world\n", string(b.Bytes()))
}

func TestByteBufferPushEmpty(t *testing.T) {
	var b ByteBuffer
	assert.Equal(t, 0, b.Push(nil))
	assert.Equal(t, 0, b.Push([]byte{}))
	assert.Equal(t, 0, b.Cap())
	assert.Equal(t, 0, b.PushAt([]byte("x"), -1))
}

func TestByteBufferPushAt(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("ab"))

	require.Equal(t, 2, b.PushAt([]byte("ef"), 2))
	require.Equal(t, 2, b.PushAt([]byte("cd"), 0))
	assert.Equal(t, 2, b.Readable(), "PushAt must not move the write cursor")

	b.Produce(4)
	assert.Equal(t, "abcdef", string(b.Bytes()))
}

func TestByteBufferPushAtHugeOffset(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("ab"))

	// offset+len 溢出 int 时必须拒绝, 而不是 panic
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, b.PushAt([]byte("xy"), math.MaxInt-1))
		assert.Equal(t, 0, b.PushAt([]byte("xy"), MaxSize))
	})
	assert.Equal(t, "ab", string(b.Bytes()))
	assert.Equal(t, 256, b.Cap(), "a rejected push does not grow the buffer")
}

func TestByteBufferFIFO(t *testing.T) {
	var b ByteBuffer
	var want bytes.Buffer
	for i := 0; i < 1000; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i%26)}, i%37+1)
		b.Push(chunk)
		want.Write(chunk)

		if i%3 == 0 {
			dst := make([]byte, 17)
			n := b.Pop(dst)
			exp := make([]byte, n)
			_, _ = want.Read(exp)
			require.Equal(t, exp, dst[:n])
		}
	}
	assert.Equal(t, want.Bytes(), b.Bytes())
}

func TestByteBufferConsumeProducePanic(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("abc"))

	assert.Panics(t, func() { b.Consume(4) })
	assert.Panics(t, func() { b.Consume(-1) })
	assert.Panics(t, func() { b.Produce(b.Writable() + 1) })

	b.Consume(3)
	assert.True(t, b.Empty())
	assert.Equal(t, DefaultSize, b.Writable(), "emptying resets cursors")
}

func TestByteBufferAssureSpace(t *testing.T) {
	var b ByteBuffer
	b.Push([]byte("keep me"))

	for _, need := range []int{1, 255, 256, 1000, 4097, 100000} {
		b.AssureSpace(need)
		assert.GreaterOrEqual(t, b.Writable(), need)
		assert.Equal(t, "keep me", string(b.Bytes()))
	}
}

func TestByteBufferAssureSpaceCompacts(t *testing.T) {
	var b ByteBuffer
	b.Push(bytes.Repeat([]byte("x"), 200))
	dst := make([]byte, 190)
	b.Pop(dst)

	// 已读空间足够时原地整理，不重新分配
	b.AssureSpace(200)
	assert.Equal(t, DefaultSize, b.Cap())
	assert.GreaterOrEqual(t, b.Writable(), 200)
	assert.Equal(t, bytes.Repeat([]byte("x"), 10), b.Bytes())
}

func TestByteBufferGrowth(t *testing.T) {
	var b ByteBuffer
	b.AssureSpace(1)
	assert.Equal(t, 256, b.Cap())

	b.Push(make([]byte, 256))
	b.AssureSpace(1)
	assert.Equal(t, 384, b.Cap(), "a power of two grows by half")

	b.AssureSpace(b.Writable() + 1)
	assert.Equal(t, 512, b.Cap())
}

func TestByteBufferShrink(t *testing.T) {
	t.Run("EmptyLarge", func(t *testing.T) {
		var b ByteBuffer
		b.Push(make([]byte, 9*1024))
		b.Clear()
		b.Shrink()
		assert.Equal(t, 0, b.Cap())
	})

	t.Run("EmptySmall", func(t *testing.T) {
		var b ByteBuffer
		b.Push(make([]byte, 1024))
		b.Clear()
		b.Shrink()
		assert.Equal(t, 1024, b.Cap())
	})

	t.Run("KeepsData", func(t *testing.T) {
		var b ByteBuffer
		payload := bytes.Repeat([]byte("0123456789"), 1000)
		b.Push(payload)
		dst := make([]byte, len(payload)-100)
		b.Pop(dst)

		b.Shrink()
		assert.Equal(t, payload[len(payload)-100:], b.Bytes())
		assert.Equal(t, 128, b.Cap())
		assert.GreaterOrEqual(t, b.Cap(), roundUpPow2(b.Readable()))
	})

	t.Run("MostlyFull", func(t *testing.T) {
		var b ByteBuffer
		b.Push(make([]byte, 200))
		b.Shrink()
		assert.Equal(t, 256, b.Cap())
	})
}

func TestByteBufferSwap(t *testing.T) {
	a := New([]byte("first"))
	var b ByteBuffer
	a.Swap(&b)

	assert.True(t, a.Empty())
	assert.Equal(t, 0, a.Cap())
	assert.Equal(t, "first", string(b.Bytes()))
}

func TestRoundUpPow2(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 2, 3: 4, 100: 128, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		assert.Equal(t, want, roundUpPow2(in), "roundUpPow2(%d)", in)
	}
}

func TestBufferVectorMerge(t *testing.T) {
	var v BufferVector
	v.PushBytes([]byte("a"))
	v.PushBytes([]byte("b"))
	v.Push(New([]byte("c")))
	assert.Equal(t, 1, v.Len(), "small pushes merge into one chunk")
	assert.Equal(t, 3, v.TotalBytes())

	v.PushBytes(make([]byte, MinChunkSize))
	v.PushBytes([]byte("tail"))
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 3+MinChunkSize+4, v.TotalBytes())

	var got []byte
	v.Each(func(p []byte) bool {
		got = append(got, p...)
		return true
	})
	assert.Equal(t, 3+MinChunkSize+4, len(got))
	assert.Equal(t, "abc", string(got[:3]))
	assert.Equal(t, "tail", string(got[len(got)-4:]))
}

func TestBufferVectorPop(t *testing.T) {
	var v BufferVector
	assert.Nil(t, v.Pop())

	v.Push(New(make([]byte, MinChunkSize)))
	v.Push(New([]byte("second")))
	require.Equal(t, 2, v.Len())

	first := v.Pop()
	assert.Equal(t, MinChunkSize, first.Readable())
	assert.Equal(t, 6, v.TotalBytes())
	assert.Equal(t, "second", string(v.Pop().Bytes()))
	assert.True(t, v.Empty())
}

func TestBufferVectorWriteTo(t *testing.T) {
	var v BufferVector
	v.PushBytes([]byte("line one\n"))
	v.PushBytes([]byte("line two\n"))

	var out bytes.Buffer
	n, err := v.WriteTo(&out)
	require.NoError(t, err)
	assert.EqualValues(t, 18, n)
	assert.Equal(t, "line one\nline two\n", out.String())
	assert.True(t, v.Empty())
	assert.Equal(t, 0, v.Len())
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("broken") }

func TestBufferVectorWriteToError(t *testing.T) {
	var v BufferVector
	v.PushBytes([]byte("data"))
	_, err := v.WriteTo(failWriter{})
	assert.Error(t, err)
	assert.True(t, v.Empty())
}
