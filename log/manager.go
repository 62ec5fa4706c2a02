package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// _errReportBurst and _errReportEvery bound the internal error lines
	// written to stderr when a destination keeps failing.
	_errReportBurst = 5
	_errReportEvery = time.Second
)

// Manager owns the drain goroutine shared by a set of streams. Callers stage
// records in their stream slots; the goroutine wakes when a slot crosses its
// flush threshold, on every AsyncWriteMillSec tick, and on Refresh, and
// moves the staged records to their destinations.
type Manager struct {
	cfg ManagerCfg

	// mu guards the stream registry and the busy set.
	mu      sync.Mutex
	streams []*Stream
	busy    map[*Stream]struct{}
	spare   map[*Stream]struct{}

	notify    chan struct{}
	refreshCh chan chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	stopErr   error

	// closed flips once in Stop. inflight counts callers between their check
	// of closed and the end of staging; Stop waits for it to drain to zero.
	closed   atomic.Bool
	inflight atomic.Int64
	// closeMu orders stream registration against Stop.
	closeMu sync.Mutex

	// drainMu serializes Start and inline drains of a manager without a goroutine.
	drainMu sync.Mutex
	started bool
	stopped bool

	console *ConsoleAppender

	// outMu serializes writes to stdout and stderr.
	outMu      sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	errLimiter *rate.Limiter
	suppressed atomic.Uint64
}

// ManagerOption customizes a Manager.
type ManagerOption func(m *Manager)

// WithStdout sets the writer for console output and for lines logged after
// Stop. The default is os.Stdout.
func WithStdout(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.stdout = w
	}
}

// WithStderr sets the writer for internal errors. The default is os.Stderr.
func WithStderr(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.stderr = w
	}
}

// NewManager returns a Manager. A nil cfg uses defaults. The drain goroutine
// starts with Start.
func NewManager(cfg *ManagerCfg, opts ...ManagerOption) *Manager {
	var c ManagerCfg
	if cfg != nil {
		c = *cfg
	}
	c.CheckCfgValid()
	if c.AsyncWriteMillSec < 10 {
		c.AsyncWriteMillSec = 10
	}

	m := &Manager{
		cfg:        c,
		busy:       make(map[*Stream]struct{}),
		spare:      make(map[*Stream]struct{}),
		notify:     make(chan struct{}, 1),
		refreshCh:  make(chan chan struct{}),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		errLimiter: rate.NewLimiter(rate.Every(_errReportEvery), _errReportBurst),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.console = NewConsoleAppender(m.stdout)
	return m
}

// CreateStream validates cfg and registers a new stream. With file output
// its directory is created and the first file opened. A stream with an empty
// level mask is valid and filters everything.
func (m *Manager) CreateStream(cfg *StreamCfg) (*Stream, error) {
	if cfg == nil {
		return nil, errors.New("log: nil stream config")
	}
	c := *cfg
	c.CheckCfgValid()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if m.isClosed() {
		return nil, ErrManagerStopped
	}

	s := newStream(m, &c)
	if c.LogLevel != 0 && c.Dest&FileDest != 0 {
		if err := ensureDir(c.Dir); err != nil {
			return nil, fmt.Errorf("stream %s: %w", c.Name, err)
		}
		if err := s.rotate(); err != nil {
			return nil, fmt.Errorf("stream %s: %w", c.Name, err)
		}
	}

	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Load() {
		_ = s.closeFile()
		return nil, ErrManagerStopped
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.streams {
		if other.name == s.name {
			_ = s.closeFile()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStream, s.name)
		}
	}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *Manager) isClosed() bool {
	return m.closed.Load()
}

// Streams returns the registered streams.
func (m *Manager) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// Start launches the drain goroutine. Calling Start again, or after Stop, does nothing.
func (m *Manager) Start() {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	go m.run()
}

// Stop stops the drain goroutine, drains every stream a last time and closes
// all files. Records finished after Stop are written to stdout. Stop is
// idempotent and returns the close errors of the first call.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		m.closeMu.Lock()
		m.closed.Store(true)
		m.closeMu.Unlock()
		// wait for callers that saw the manager open to finish staging
		for m.inflight.Load() != 0 {
			runtime.Gosched()
		}

		m.drainMu.Lock()
		defer m.drainMu.Unlock()
		if m.started {
			close(m.stopCh)
			<-m.doneCh
		} else {
			close(m.doneCh)
		}

		m.drainAll()
		var errs []error
		for _, s := range m.Streams() {
			if err := s.closeFile(); err != nil {
				errs = append(errs, err)
			}
		}
		m.stopped = true
		m.stopErr = errors.Join(errs...)
	})
	return m.stopErr
}

// Refresh drains every stream and syncs open files, blocking until done.
// It does nothing once the manager is stopped.
func (m *Manager) Refresh() {
	m.drainMu.Lock()
	if !m.started {
		if !m.stopped {
			m.drainAll()
			m.syncAll()
		}
		m.drainMu.Unlock()
		return
	}
	m.drainMu.Unlock()

	done := make(chan struct{})
	select {
	case m.refreshCh <- done:
		<-done
	case <-m.doneCh:
	}
}

// Stats returns a snapshot of every stream's counters.
func (m *Manager) Stats() []StreamStats {
	streams := m.Streams()
	stats := make([]StreamStats, 0, len(streams))
	for _, s := range streams {
		stats = append(stats, s.Stats())
	}
	return stats
}

// SuppressedErrors returns the number of internal errors not printed because
// of rate limiting.
func (m *Manager) SuppressedErrors() uint64 {
	return m.suppressed.Load()
}

// markBusy queues s for the next drain and wakes the drain goroutine. A
// stream already queued is not queued twice.
func (m *Manager) markBusy(s *Stream) {
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	s.stats.busySignals.Add(1)

	m.mu.Lock()
	m.busy[s] = struct{}{}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	defer close(m.doneCh)

	drainTicker := time.NewTicker(time.Duration(m.cfg.AsyncWriteMillSec) * time.Millisecond)
	defer drainTicker.Stop()

	var syncC <-chan time.Time
	if m.cfg.SyncMillSec > 0 {
		syncTicker := time.NewTicker(time.Duration(m.cfg.SyncMillSec) * time.Millisecond)
		defer syncTicker.Stop()
		syncC = syncTicker.C
	}

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.notify:
			m.drainBusy()
		case done := <-m.refreshCh:
			m.drainAll()
			m.syncAll()
			close(done)
		case <-drainTicker.C:
			// Timed write back so quiet streams still reach their destinations
			m.drainAll()
			for _, s := range m.Streams() {
				s.shrink()
			}
		case <-syncC:
			m.syncAll()
		}
	}
}

func (m *Manager) drainBusy() {
	m.mu.Lock()
	set := m.busy
	m.busy = m.spare
	m.mu.Unlock()

	for s := range set {
		s.drain(m.console)
	}
	clear(set)
	m.spare = set
	m.flushConsole()
}

func (m *Manager) drainAll() {
	for _, s := range m.Streams() {
		s.drain(m.console)
	}
	m.flushConsole()
}

func (m *Manager) syncAll() {
	for _, s := range m.Streams() {
		if err := s.syncFile(); err != nil {
			m.reportErr(fmt.Errorf("stream %s: %w", s.name, err))
		}
	}
}

func (m *Manager) flushConsole() {
	if m.console.Pending() == 0 {
		return
	}
	m.outMu.Lock()
	err := m.console.Refresh()
	m.outMu.Unlock()
	if err != nil {
		m.reportErr(fmt.Errorf("console: %w", err))
	}
}

// writeDirect writes a line logged after Stop.
func (m *Manager) writeDirect(line []byte) {
	m.outMu.Lock()
	_, _ = m.stdout.Write(line)
	m.outMu.Unlock()
}

// reportErr prints an internal error, dropping it when errors arrive faster
// than the limiter allows.
func (m *Manager) reportErr(err error) {
	if !m.errLimiter.Allow() {
		m.suppressed.Add(1)
		return
	}
	m.outMu.Lock()
	fmt.Fprintf(m.stderr, "strixlog: %v\n", err)
	m.outMu.Unlock()
}
