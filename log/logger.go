package log

import (
	"sync"
	"sync/atomic"
)

// defaultLogger bundles the package-level manager and stream.
type defaultLogger struct {
	mgr    *Manager
	stream *Stream
}

var (
	_default   atomic.Pointer[defaultLogger]
	_defaultMu sync.Mutex
)

func init() {
	// Filter everything until Initialize is called.
	_default.Store(&defaultLogger{stream: _nullStream})
}

// Initialize configures the default logger with the given configuration.
// If cfg is nil, the default configuration will be used.
// A previously initialized default logger is stopped first.
// This function should be called once at application startup.
func Initialize(cfg *LogCfg, opts ...ManagerOption) error {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	c := *cfg
	c.CheckCfgValid()
	if err := c.Validate(); err != nil {
		return err
	}

	mgr := NewManager(&c.ManagerCfg, opts...)
	stream, err := mgr.CreateStream(&c.StreamCfg)
	if err != nil {
		_ = mgr.Stop()
		return err
	}
	mgr.Start()

	_defaultMu.Lock()
	old := _default.Swap(&defaultLogger{mgr: mgr, stream: stream})
	_defaultMu.Unlock()
	if old.mgr != nil {
		return old.mgr.Stop()
	}
	return nil
}

// Close stops the default logger and writes every staged record. The default
// then filters everything until the next Initialize.
func Close() error {
	_defaultMu.Lock()
	old := _default.Swap(&defaultLogger{stream: _nullStream})
	_defaultMu.Unlock()
	if old.mgr != nil {
		return old.mgr.Stop()
	}
	return nil
}

// SetDefault makes s the stream behind the package-level functions and
// returns the previous default manager, which the caller may need to stop.
func SetDefault(s *Stream) *Manager {
	if s == nil {
		s = _nullStream
	}
	_defaultMu.Lock()
	old := _default.Swap(&defaultLogger{mgr: s.mgr, stream: s})
	_defaultMu.Unlock()
	return old.mgr
}

// ResetDefault puts back the filtering default if s is the current default.
func ResetDefault(s *Stream) bool {
	_defaultMu.Lock()
	defer _defaultMu.Unlock()
	if _default.Load().stream != s {
		return false
	}
	_default.Store(&defaultLogger{stream: _nullStream})
	return true
}

// Refresh blocks until every staged record of the default logger is written and synced.
func Refresh() {
	if mgr := _default.Load().mgr; mgr != nil {
		mgr.Refresh()
	}
}

// Default returns the stream behind the package-level functions.
func Default() *Stream {
	return _default.Load().stream
}

// DefaultManager returns the manager of the default logger, or nil before Initialize.
func DefaultManager() *Manager {
	return _default.Load().mgr
}

// Debug creates a new debug-level record on the default stream.
func Debug() *Record {
	return Default().Debug()
}

// Info creates a new info-level record on the default stream.
func Info() *Record {
	return Default().Info()
}

// Warn creates a new warn-level record on the default stream.
func Warn() *Record {
	return Default().Warn()
}

// Error creates a new error-level record on the default stream.
func Error() *Record {
	return Default().Error()
}

// Usr creates a new usr-level record on the default stream.
func Usr() *Record {
	return Default().Usr()
}
