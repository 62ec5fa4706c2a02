package log

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/linchenxuan/strixlog/utils/buffer"
)

var (
	_colorRed    = []byte("\033[1;31;40m")
	_colorGreen  = []byte("\033[1;32;40m")
	_colorYellow = []byte("\033[1;33;40m")
	_colorNormal = []byte("\033[0m")
	_colorBlue   = []byte("\033[1;34;40m")
	_colorPurple = []byte("\033[1;35;40m")
	_colorWhite  = []byte("\033[1;37;40m")
)

func levelColor(l Level) []byte {
	switch l {
	case InfoLevel:
		return _colorGreen
	case DebugLevel:
		return _colorBlue
	case WarnLevel:
		return _colorYellow
	case ErrorLevel:
		return _colorRed
	case UsrLevel:
		return _colorPurple
	default:
		return _colorWhite
	}
}

// ConsoleAppender collects console lines of one drain pass and writes them
// in a few large writes. Lines are colored per level when the writer is a
// terminal.
//
// ConsoleAppender is owned by the drain goroutine and is not safe for
// concurrent use.
type ConsoleAppender struct {
	w     io.Writer
	color bool
	vec   buffer.BufferVector
}

// NewConsoleAppender returns an appender writing to w, or to os.Stdout when w is nil.
func NewConsoleAppender(w io.Writer) *ConsoleAppender {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleAppender{
		w:     w,
		color: isTerminal(w),
	}
}

// SetColor forces coloring on or off.
func (ca *ConsoleAppender) SetColor(on bool) {
	ca.color = on
}

// Append queues one line.
func (ca *ConsoleAppender) Append(level Level, line []byte) {
	if !ca.color {
		ca.vec.PushBytes(line)
		return
	}

	// keep the newline outside the color so the reset does not bleed
	body := line
	if n := len(body); n > 0 && body[n-1] == '\n' {
		body = body[:n-1]
	}
	ca.vec.PushBytes(levelColor(level))
	ca.vec.PushBytes(body)
	ca.vec.PushBytes(_colorNormal)
	if len(body) < len(line) {
		ca.vec.PushBytes(line[len(body):])
	}
}

// Pending returns the number of queued bytes.
func (ca *ConsoleAppender) Pending() int {
	return ca.vec.TotalBytes()
}

// Write writes buf immediately.
func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	return ca.w.Write(buf)
}

// Refresh writes every queued line.
func (ca *ConsoleAppender) Refresh() error {
	if ca.vec.Empty() {
		return nil
	}
	_, err := ca.vec.WriteTo(ca.w)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
