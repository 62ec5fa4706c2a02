package log

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/linchenxuan/strixlog/utils/buffer"
	"github.com/linchenxuan/strixlog/utils/timefmt"
)

const (
	// MaxRecordLen bounds a single formatted line including prefix and slot id.
	MaxRecordLen = 2048

	// _prefixReserve is the scratch space kept in front of the message for the
	// timestamp and level tag. The prefix is right-aligned against the message.
	_prefixReserve = 64
	// _idReserve is the scratch space kept after the message for "|<id>\n".
	_idReserve = 24
	// _msgLimit is the scratch offset past which message fragments are dropped.
	_msgLimit = MaxRecordLen - _idReserve

	// _frameHeaderLen is the size of [level uint32][length uint32][seq uint64]
	// in front of every staged line.
	_frameHeaderLen = 16
)

// Record is a caller slot of a Stream. While checked out it holds the draft
// of one log line; between drafts it keeps the framed lines the drain
// goroutine has not collected yet.
//
// A Record obtained from Stream.Log or Producer.Log belongs to the caller
// until Msg, End, Flush or Discard returns. It must not be used afterwards.
// All methods are no-ops on a nil Record, which is what a filtered level
// returns, so a disabled call chain formats nothing.
type Record struct {
	stream    *Stream
	id        []byte // "|<n>"
	dedicated bool

	inUse atomic.Bool
	level Level
	pos   int
	ts    *timefmt.Cache

	scratch [MaxRecordLen]byte

	// mu guards staging between the owner framing lines and the drain swap.
	mu      sync.Mutex
	staging buffer.ByteBuffer

	// drained holds the frames of the last swap. Drainer-owned.
	drained buffer.ByteBuffer
}

func newRecord(s *Stream, id uint64, dedicated bool) *Record {
	r := &Record{
		stream:    s,
		dedicated: dedicated,
		pos:       _prefixReserve,
		ts:        timefmt.NewCache(s.utc),
	}
	r.id = strconv.AppendUint([]byte{'|'}, id, 10)
	return r
}

// ID returns the slot id written at the end of every line from this slot.
func (r *Record) ID() string {
	if r == nil {
		return ""
	}
	return string(r.id[1:])
}

// Level returns the level of the current draft.
func (r *Record) Level() Level {
	if r == nil {
		return 0
	}
	return r.level
}

// Len returns the length of the message drafted so far.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return r.pos - _prefixReserve
}

func (r *Record) put(p []byte) *Record {
	if r == nil {
		return nil
	}
	if r.pos+len(p) > _msgLimit {
		return r
	}
	r.pos += copy(r.scratch[r.pos:], p)
	return r
}

// Str appends s to the message.
func (r *Record) Str(s string) *Record {
	if r == nil {
		return nil
	}
	if r.pos+len(s) > _msgLimit {
		return r
	}
	r.pos += copy(r.scratch[r.pos:], s)
	return r
}

// Bytes appends p to the message.
func (r *Record) Bytes(p []byte) *Record {
	return r.put(p)
}

// Byte appends a single byte.
func (r *Record) Byte(c byte) *Record {
	if r == nil {
		return nil
	}
	if r.pos+1 > _msgLimit {
		return r
	}
	r.scratch[r.pos] = c
	r.pos++
	return r
}

// Rune appends the UTF-8 encoding of c.
func (r *Record) Rune(c rune) *Record {
	if r == nil {
		return nil
	}
	var tmp [utf8.UTFMax]byte
	return r.put(utf8.AppendRune(tmp[:0], c))
}

// Int appends v in decimal.
func (r *Record) Int(v int) *Record {
	return r.Int64(int64(v))
}

// Int8 appends v in decimal.
func (r *Record) Int8(v int8) *Record {
	return r.Int64(int64(v))
}

// Int16 appends v in decimal.
func (r *Record) Int16(v int16) *Record {
	return r.Int64(int64(v))
}

// Int32 appends v in decimal.
func (r *Record) Int32(v int32) *Record {
	return r.Int64(int64(v))
}

// Int64 appends v in decimal.
func (r *Record) Int64(v int64) *Record {
	if r == nil {
		return nil
	}
	var tmp [24]byte
	return r.put(strconv.AppendInt(tmp[:0], v, 10))
}

// Uint appends v in decimal.
func (r *Record) Uint(v uint) *Record {
	return r.Uint64(uint64(v))
}

// Uint8 appends v in decimal, not as a character. Use Byte for raw bytes.
func (r *Record) Uint8(v uint8) *Record {
	return r.Uint64(uint64(v))
}

// Uint16 appends v in decimal.
func (r *Record) Uint16(v uint16) *Record {
	return r.Uint64(uint64(v))
}

// Uint32 appends v in decimal.
func (r *Record) Uint32(v uint32) *Record {
	return r.Uint64(uint64(v))
}

// Uint64 appends v in decimal.
func (r *Record) Uint64(v uint64) *Record {
	if r == nil {
		return nil
	}
	var tmp [24]byte
	return r.put(strconv.AppendUint(tmp[:0], v, 10))
}

// Hex appends v as 0x-prefixed lowercase hex.
func (r *Record) Hex(v uint64) *Record {
	if r == nil {
		return nil
	}
	var tmp [24]byte
	return r.put(strconv.AppendUint(append(tmp[:0], '0', 'x'), v, 16))
}

// Ptr appends the address held by a pointer, map, slice, channel or func in
// hex, or "nil".
func (r *Record) Ptr(p any) *Record {
	if r == nil {
		return nil
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return r.Str("nil")
		}
		return r.Hex(uint64(v.Pointer()))
	case reflect.Invalid:
		return r.Str("nil")
	default:
		return r.Str("!ptr(").Str(v.Type().String()).Byte(')')
	}
}

// Float32 appends v in the shortest form that round-trips.
func (r *Record) Float32(v float32) *Record {
	if r == nil {
		return nil
	}
	var tmp [32]byte
	return r.put(strconv.AppendFloat(tmp[:0], float64(v), 'g', -1, 32))
}

// Float64 appends v in the shortest form that round-trips.
func (r *Record) Float64(v float64) *Record {
	if r == nil {
		return nil
	}
	var tmp [32]byte
	return r.put(strconv.AppendFloat(tmp[:0], v, 'g', -1, 64))
}

// Bool appends "true" or "false".
func (r *Record) Bool(v bool) *Record {
	if v {
		return r.Str("true")
	}
	return r.Str("false")
}

// Err appends err.Error(), or "<nil>" for a nil error.
func (r *Record) Err(err error) *Record {
	if r == nil {
		return nil
	}
	if err == nil {
		return r.Str("<nil>")
	}
	return r.Str(err.Error())
}

// Dur appends d in time.Duration notation, e.g. "1.5s".
func (r *Record) Dur(d time.Duration) *Record {
	if r == nil {
		return nil
	}
	return r.Str(d.String())
}

// Time appends t using the layout.
func (r *Record) Time(t time.Time, layout string) *Record {
	if r == nil {
		return nil
	}
	var tmp [64]byte
	return r.put(t.AppendFormat(tmp[:0], layout))
}

// Stringer appends v.String().
func (r *Record) Stringer(v fmt.Stringer) *Record {
	if r == nil {
		return nil
	}
	if v == nil {
		return r.Str("<nil>")
	}
	return r.Str(v.String())
}

// Msg appends s and finishes the record.
func (r *Record) Msg(s string) {
	r.Str(s).End()
}

// Msgf appends the formatted text and finishes the record.
func (r *Record) Msgf(format string, args ...any) {
	if r == nil {
		return
	}
	b := fmt.Appendf(r.scratch[r.pos:r.pos], format, args...)
	// a result past the message area is dropped whole like any other fragment
	if r.pos+len(b) > _msgLimit {
		r.End()
		return
	}
	r.pos += copy(r.scratch[r.pos:], b)
	r.End()
}

// End finishes the record at its own level.
func (r *Record) End() {
	if r == nil {
		return
	}
	r.Flush(r.level)
}

// Discard drops the draft and releases the slot.
func (r *Record) Discard() {
	if r == nil {
		return
	}
	r.pos = _prefixReserve
	r.release()
}

// Flush completes the line and stages it for the drain goroutine. level must
// be the level the record was obtained with. An empty message writes nothing.
func (r *Record) Flush(level Level) {
	if r == nil {
		return
	}
	if level != r.level {
		panic(fmt.Sprintf("log: flush %s record as %s", r.level, level))
	}
	if r.pos == _prefixReserve {
		r.release()
		return
	}

	ts := r.ts.Format(time.Now())
	start := _prefixReserve - tagLen - len(ts)
	copy(r.scratch[start:], ts)
	copy(r.scratch[_prefixReserve-tagLen:], level.tag())

	r.pos += copy(r.scratch[r.pos:], r.id)
	r.scratch[r.pos] = '\n'
	r.pos++

	r.stream.commit(r, r.scratch[start:r.pos])

	r.pos = _prefixReserve
	r.release()
}

// stage frames line into the staging buffer and returns the staged size.
func (r *Record) stage(line []byte) int {
	var hdr [_frameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(r.level))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(line)))

	r.mu.Lock()
	// The sequence is taken under the slot lock: a drain that loaded the
	// stream sequence before swapping this slot always finds the frame.
	binary.LittleEndian.PutUint64(hdr[8:], r.stream.seq.Add(1))
	r.staging.AssureSpace(len(hdr) + len(line))
	r.staging.Push(hdr[:])
	r.staging.Push(line)
	staged := r.staging.Readable()
	r.mu.Unlock()
	return staged
}

// swapStaging moves the staged frames into drained, which must be empty.
func (r *Record) swapStaging() {
	r.mu.Lock()
	r.staging.Swap(&r.drained)
	r.mu.Unlock()
}

func (r *Record) release() {
	r.inUse.Store(false)
	if !r.dedicated {
		r.stream.putIdle(r)
	}
}
