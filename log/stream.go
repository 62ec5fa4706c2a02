package log

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/linchenxuan/strixlog/utils/buffer"
	"github.com/linchenxuan/strixlog/utils/file"
	"github.com/linchenxuan/strixlog/utils/timefmt"
)

// Stream is a named log sink with a fixed level mask and destinations.
// Callers draft records into per-caller slots; the Manager's drain goroutine
// moves framed records to the console and to rotating files.
//
// Stream is safe for concurrent use. A nil or disabled Stream filters every level.
type Stream struct {
	mgr            *Manager
	name           string
	levelMask      Level
	dest           Dest
	dir            string
	maxFileSize    int64
	flushThreshold int
	utc            bool

	// mu guards the slot registry.
	mu      sync.Mutex
	records []*Record
	idle    []*Record
	nextID  uint64

	busy atomic.Bool

	// seq numbers committed records across all slots of the stream.
	seq atomic.Uint64

	// Drainer-owned file state.
	file     *file.MmapFile
	fileTS   *timefmt.Cache
	fileName atomic.Pointer[string]

	// Drainer-owned merge state. carry holds frames committed after the mark
	// of the previous drain.
	frames []frame
	carry  buffer.ByteBuffer
	spill  buffer.ByteBuffer

	stats streamCounters
}

type streamCounters struct {
	framedRecords  atomic.Uint64
	framedBytes    atomic.Uint64
	drainedRecords atomic.Uint64
	drainedBytes   atomic.Uint64
	directRecords  atomic.Uint64
	busySignals    atomic.Uint64
	rotations      atomic.Uint64
	droppedBytes   atomic.Uint64
	fileOffset     atomic.Int64
}

// StreamStats is a snapshot of a stream's counters.
type StreamStats struct {
	Name string
	// FramedRecords and FramedBytes count lines staged by callers.
	FramedRecords uint64
	FramedBytes   uint64
	// DrainedRecords and DrainedBytes count lines delivered by the drain goroutine.
	DrainedRecords uint64
	DrainedBytes   uint64
	// DirectRecords counts lines written straight to stdout after Stop.
	DirectRecords uint64
	BusySignals   uint64
	Rotations     uint64
	// DroppedBytes counts bytes that could not be written to a file.
	DroppedBytes uint64
	Slots        int
	FileName     string
	FileOffset   int64
}

// _nullStream filters everything. It backs the package-level default before Initialize.
var _nullStream = &Stream{name: _defaultStreamName}

func newStream(m *Manager, cfg *StreamCfg) *Stream {
	return &Stream{
		mgr:            m,
		name:           cfg.Name,
		levelMask:      cfg.LogLevel,
		dest:           cfg.Dest,
		dir:            cfg.Dir,
		maxFileSize:    int64(cfg.FileSplitMB) << 20,
		flushThreshold: cfg.FlushThresholdKB << 10,
		utc:            cfg.UTC,
		fileTS:         timefmt.NewCache(cfg.UTC),
		nextID:         1,
	}
}

// Name returns the stream name.
func (s *Stream) Name() string {
	return s.name
}

// IsLevelForbidden reports whether records of level are filtered out.
func (s *Stream) IsLevelForbidden(level Level) bool {
	return s == nil || level&s.levelMask == 0 || s.mgr == nil
}

// Log starts a record of level in an idle slot. It returns nil when the level
// is filtered; every Record method accepts nil.
func (s *Stream) Log(level Level) *Record {
	if s.IsLevelForbidden(level) {
		return nil
	}
	r := s.acquire()
	r.level = level
	return r
}

// Info starts an info-level record.
func (s *Stream) Info() *Record { return s.Log(InfoLevel) }

// Debug starts a debug-level record.
func (s *Stream) Debug() *Record { return s.Log(DebugLevel) }

// Warn starts a warn-level record.
func (s *Stream) Warn() *Record { return s.Log(WarnLevel) }

// Error starts an error-level record.
func (s *Stream) Error() *Record { return s.Log(ErrorLevel) }

// Usr starts a usr-level record.
func (s *Stream) Usr() *Record { return s.Log(UsrLevel) }

// Producer returns a handle owning a dedicated slot. Records of one Producer
// are written in the order they are finished. A Producer must be used by one
// goroutine at a time.
func (s *Stream) Producer() *Producer {
	if s == nil || s.levelMask == 0 || s.mgr == nil {
		return &Producer{}
	}

	s.mu.Lock()
	r := newRecord(s, s.nextID, true)
	s.nextID++
	s.records = append(s.records, r)
	s.mu.Unlock()
	return &Producer{r: r}
}

func (s *Stream) acquire() *Record {
	s.mu.Lock()
	var r *Record
	if n := len(s.idle); n > 0 {
		r = s.idle[n-1]
		s.idle[n-1] = nil
		s.idle = s.idle[:n-1]
	} else {
		r = newRecord(s, s.nextID, false)
		s.nextID++
		s.records = append(s.records, r)
	}
	s.mu.Unlock()

	if !r.inUse.CompareAndSwap(false, true) {
		panic("log: slot " + r.ID() + " already in use")
	}
	return r
}

func (s *Stream) putIdle(r *Record) {
	s.mu.Lock()
	s.idle = append(s.idle, r)
	s.mu.Unlock()
}

func (s *Stream) slots() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

// commit stages a finished line, or writes it to stdout once the manager is
// closed. The in-flight count is raised before closed is checked, so Stop
// either waits for the frame to be staged or the caller sees closed.
func (s *Stream) commit(r *Record, line []byte) {
	m := s.mgr
	m.inflight.Add(1)
	if m.closed.Load() {
		m.inflight.Add(-1)
		s.stats.directRecords.Add(1)
		m.writeDirect(line)
		return
	}
	staged := r.stage(line)
	m.inflight.Add(-1)

	s.stats.framedRecords.Add(1)
	s.stats.framedBytes.Add(uint64(len(line)))
	if staged > s.flushThreshold {
		m.markBusy(s)
	}
}

type frame struct {
	seq   uint64
	level Level
	raw   []byte // header and line
}

func (f *frame) line() []byte {
	return f.raw[_frameHeaderLen:]
}

// drain delivers, in commit order, every record committed before it started.
// Only the drain goroutine calls it, or Stop after that goroutine exited.
//
// A record committed while the slots are being swapped can show up in this
// pass although an earlier record of the same caller sits in a slot that was
// already swapped. Frames past the mark are therefore kept in carry and
// merged into the next pass.
func (s *Stream) drain(console *ConsoleAppender) {
	s.busy.Store(false)
	mark := s.seq.Load()
	slots := s.slots()

	s.frames = s.frames[:0]
	s.collect(&s.carry)
	for _, r := range slots {
		r.swapStaging()
		s.collect(&r.drained)
	}
	slices.SortFunc(s.frames, func(a, b frame) int {
		return cmp.Compare(a.seq, b.seq)
	})

	n := 0
	for ; n < len(s.frames) && s.frames[n].seq <= mark; n++ {
		s.deliver(&s.frames[n], console)
	}
	for i := n; i < len(s.frames); i++ {
		s.spill.Push(s.frames[i].raw)
	}

	clear(s.frames)
	s.frames = s.frames[:0]
	s.carry.Clear()
	s.carry.Swap(&s.spill)
	for _, r := range slots {
		r.drained.Clear()
	}
}

// collect appends the frames of b to s.frames. The frames alias b.
func (s *Stream) collect(b *buffer.ByteBuffer) {
	p := b.Bytes()
	for len(p) >= _frameHeaderLen {
		n := int(binary.LittleEndian.Uint32(p[4:]))
		if len(p)-_frameHeaderLen < n {
			break
		}
		s.frames = append(s.frames, frame{
			seq:   binary.LittleEndian.Uint64(p[8:]),
			level: Level(binary.LittleEndian.Uint32(p[0:])),
			raw:   p[:_frameHeaderLen+n],
		})
		p = p[_frameHeaderLen+n:]
	}

	if rest := len(p); rest > 0 {
		s.stats.droppedBytes.Add(uint64(rest))
		s.mgr.reportErr(fmt.Errorf("stream %s: %d bytes of truncated frame", s.name, rest))
	}
}

func (s *Stream) deliver(f *frame, console *ConsoleAppender) {
	line := f.line()
	if s.dest&FileDest != 0 {
		s.writeFile(line)
	}
	if s.dest&ConsoleDest != 0 && console != nil {
		console.Append(f.level, line)
	}
	s.stats.drainedRecords.Add(1)
	s.stats.drainedBytes.Add(uint64(len(line)))
}

// shrink releases merge and slot buffers grown by a burst.
func (s *Stream) shrink() {
	s.carry.Shrink()
	s.spill.Shrink()
	for _, r := range s.slots() {
		r.drained.Shrink()
	}
}

func (s *Stream) writeFile(line []byte) {
	if s.shouldRotate() {
		if err := s.rotate(); err != nil {
			s.stats.droppedBytes.Add(uint64(len(line)))
			s.mgr.reportErr(fmt.Errorf("stream %s: rotate: %w", s.name, err))
			return
		}
	}

	if _, err := s.file.Write(line); err != nil {
		s.stats.droppedBytes.Add(uint64(len(line)))
		s.mgr.reportErr(fmt.Errorf("stream %s: write %s: %w", s.name, s.file.Name(), err))
		return
	}
	s.stats.fileOffset.Store(s.file.Offset())
}

func (s *Stream) syncFile() error {
	if !s.file.IsOpen() {
		return nil
	}
	return s.file.Sync()
}

func (s *Stream) closeFile() error {
	if !s.file.IsOpen() {
		return nil
	}
	err := errors.Join(s.file.Sync(), s.file.Close())
	s.file = nil
	if err != nil {
		return fmt.Errorf("stream %s: close: %w", s.name, err)
	}
	return nil
}

// Stats returns a snapshot of the stream counters.
func (s *Stream) Stats() StreamStats {
	st := StreamStats{
		Name:           s.name,
		FramedRecords:  s.stats.framedRecords.Load(),
		FramedBytes:    s.stats.framedBytes.Load(),
		DrainedRecords: s.stats.drainedRecords.Load(),
		DrainedBytes:   s.stats.drainedBytes.Load(),
		DirectRecords:  s.stats.directRecords.Load(),
		BusySignals:    s.stats.busySignals.Load(),
		Rotations:      s.stats.rotations.Load(),
		DroppedBytes:   s.stats.droppedBytes.Load(),
		FileOffset:     s.stats.fileOffset.Load(),
	}
	if name := s.fileName.Load(); name != nil {
		st.FileName = *name
	}
	s.mu.Lock()
	st.Slots = len(s.records)
	s.mu.Unlock()
	return st
}

// FileName returns the path of the file currently written, if any.
func (s *Stream) FileName() string {
	if name := s.fileName.Load(); name != nil {
		return *name
	}
	return ""
}

// Producer owns a dedicated slot of a Stream. The zero Producer filters every level.
type Producer struct {
	r *Record
}

// Log starts a record of level in the producer's slot. Starting a record
// while the previous one is unfinished panics.
func (p *Producer) Log(level Level) *Record {
	if p == nil || p.r == nil || p.r.stream.IsLevelForbidden(level) {
		return nil
	}
	if !p.r.inUse.CompareAndSwap(false, true) {
		panic("log: producer slot " + p.r.ID() + " already in use")
	}
	p.r.level = level
	return p.r
}

// Info starts an info-level record.
func (p *Producer) Info() *Record { return p.Log(InfoLevel) }

// Debug starts a debug-level record.
func (p *Producer) Debug() *Record { return p.Log(DebugLevel) }

// Warn starts a warn-level record.
func (p *Producer) Warn() *Record { return p.Log(WarnLevel) }

// Error starts an error-level record.
func (p *Producer) Error() *Record { return p.Log(ErrorLevel) }

// Usr starts a usr-level record.
func (p *Producer) Usr() *Record { return p.Log(UsrLevel) }

// Release hands the slot back to the stream's idle list. Lines already
// staged are still delivered. The Producer filters everything afterwards.
func (p *Producer) Release() {
	if p == nil || p.r == nil {
		return
	}
	r := p.r
	if r.inUse.Load() {
		panic("log: release producer slot " + r.ID() + " with an unfinished record")
	}
	p.r = nil

	s := r.stream
	s.mu.Lock()
	r.dedicated = false
	s.idle = append(s.idle, r)
	s.mu.Unlock()
}
