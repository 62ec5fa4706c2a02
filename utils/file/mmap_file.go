//go:build linux || darwin || freebsd

// Package file provides a memory-mapped append-only file used as a log sink.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultMapSize is the initial mapping size of a new file.
const DefaultMapSize int64 = 1 << 20

var (
	// ErrFileClosed is returned when operating on a file that is not open.
	ErrFileClosed = errors.New("mmap file closed")
	// _fileMode is the default file mode for creating files.
	_fileMode fs.FileMode = 0o644
)

// MmapFile writes through a shared memory mapping. The file is over-allocated
// while open and cut back to the written length on Close.
//
// MmapFile is not safe for concurrent use.
type MmapFile struct {
	f       *os.File
	data    []byte
	size    int64 // mapped length
	offset  int64 // written length
	syncPos int64 // bytes below syncPos have been msynced
}

// Open maps path for writing. With appendMode the existing content is kept
// and writes continue at its end, otherwise the file is truncated.
func Open(path string, appendMode bool) (*MmapFile, error) {
	flag := os.O_RDWR | os.O_CREATE
	if !appendMode {
		flag |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flag, _fileMode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	m := &MmapFile{f: f, size: DefaultMapSize}
	if appendMode {
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		m.offset = st.Size()
		m.syncPos = m.offset
		m.size = max(DefaultMapSize, m.offset)
	}

	if err := m.mapRegion(m.size); err != nil {
		_ = f.Close()
		return nil, err
	}
	return m, nil
}

// Name returns the path the file was opened with.
func (m *MmapFile) Name() string {
	if m.f == nil {
		return ""
	}
	return m.f.Name()
}

// IsOpen reports whether the file is open.
func (m *MmapFile) IsOpen() bool {
	return m != nil && m.f != nil
}

// Offset returns the number of bytes written.
func (m *MmapFile) Offset() int64 {
	return m.offset
}

// Size returns the current mapped length.
func (m *MmapFile) Size() int64 {
	return m.size
}

// Write copies p at the current offset, doubling the mapping until it fits.
func (m *MmapFile) Write(p []byte) (int, error) {
	if !m.IsOpen() {
		return 0, ErrFileClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	need := m.offset + int64(len(p))
	if need > m.size {
		newSize := m.size
		for newSize < need {
			newSize *= 2
		}
		if err := m.remap(newSize); err != nil {
			return 0, err
		}
	}

	n := copy(m.data[m.offset:], p)
	m.offset += int64(n)
	return n, nil
}

// Sync flushes the bytes written since the last Sync to disk.
func (m *MmapFile) Sync() error {
	if !m.IsOpen() || m.syncPos >= m.offset {
		return nil
	}

	start := m.syncPos &^ int64(os.Getpagesize()-1)
	if err := unix.Msync(m.data[start:m.offset], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", m.f.Name(), err)
	}
	m.syncPos = m.offset
	return nil
}

// Truncate moves the write offset to size. Growing past the mapping remaps;
// the file length on disk is settled by Close.
func (m *MmapFile) Truncate(size int64) error {
	if !m.IsOpen() {
		return ErrFileClosed
	}
	if size < 0 {
		return fmt.Errorf("truncate %s: negative size %d", m.f.Name(), size)
	}

	if size > m.size {
		if err := m.remap(size); err != nil {
			return err
		}
	}
	if size > m.offset {
		clear(m.data[m.offset:size])
	}
	m.offset = size
	m.syncPos = min(m.syncPos, size)
	return nil
}

// Close unmaps the file, cuts it to the written length and closes it.
// Closing a closed file is a no-op.
func (m *MmapFile) Close() error {
	if !m.IsOpen() {
		return nil
	}

	var errs []error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		m.data = nil
	}
	if err := m.f.Truncate(m.offset); err != nil {
		errs = append(errs, fmt.Errorf("truncate: %w", err))
	}
	if err := m.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	m.f = nil
	return errors.Join(errs...)
}

func (m *MmapFile) remap(size int64) error {
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("munmap %s: %w", m.f.Name(), err)
	}
	m.data = nil
	if err := m.mapRegion(size); err != nil {
		// keep the old mapping usable, or give up on the file
		if err2 := m.mapRegion(m.size); err2 != nil {
			_ = m.f.Truncate(m.offset)
			_ = m.f.Close()
			m.f = nil
			return errors.Join(err, err2)
		}
		return err
	}
	m.size = size
	return nil
}

func (m *MmapFile) mapRegion(size int64) error {
	if err := m.f.Truncate(size); err != nil {
		return fmt.Errorf("resize %s: %w", m.f.Name(), err)
	}

	data, err := unix.Mmap(int(m.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", m.f.Name(), err)
	}
	m.data = data
	return nil
}
