package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/strixlog/utils/file"
	"github.com/linchenxuan/strixlog/utils/timefmt"
)

const (
	// Default permissions for log directories
	defaultDirMode = 0o755
)

// _fileSeq numbers log files across all streams of the process so that two
// files opened in the same microsecond still get distinct names.
var _fileSeq atomic.Uint64

// shouldRotate reports whether the next record needs a new file: there is no
// open file, or a maximum-size record might not fit under the split size.
func (s *Stream) shouldRotate() bool {
	return !s.file.IsOpen() || s.file.Offset()+MaxRecordLen > s.maxFileSize
}

// rotate closes the current file, if any, and opens a fresh one.
//
// A failure to close the old file is reported but does not stop rotation.
// When the new file cannot be opened the stream is left without a file and
// the next record retries.
func (s *Stream) rotate() error {
	var errs []error
	rotating := s.file.IsOpen()
	if rotating {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close old file: %w", err))
		}
		s.file = nil
	}

	name := logFileName(s.dir, s.fileTS, time.Now())
	f, err := file.Open(name, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("open new log file: %w", err))
		return errors.Join(errs...)
	}

	s.file = f
	s.fileName.Store(&name)
	s.stats.fileOffset.Store(0)
	if rotating {
		s.stats.rotations.Add(1)
	}
	return errors.Join(errs...)
}

// logFileName builds <dir>/<YYYY-MM-DD[HH:MM:SS.mmmmmm]>@<pid>-<seq>.log.
func logFileName(dir string, ts *timefmt.Cache, now time.Time) string {
	var b []byte
	b = append(b, ts.Format(now)...)
	b = append(b, '@')
	b = strconv.AppendInt(b, int64(os.Getpid()), 10)
	b = append(b, '-')
	b = strconv.AppendUint(b, _fileSeq.Add(1)-1, 10)
	b = append(b, ".log"...)
	return filepath.Join(dir, string(b))
}

// ensureDir creates dir and its parents when missing.
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}
