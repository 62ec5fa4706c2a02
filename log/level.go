package log

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is a bit in a stream's level mask. A stream accepts a record when the
// record's level bit is set in its mask, so any combination of levels can be
// enabled independently of severity order.
type Level uint32

// Level bits. AllLevels enables every level, including bits not named here.
const (
	// InfoLevel marks normal operational messages.
	InfoLevel Level = 1 << iota
	// DebugLevel marks diagnostic detail for development and troubleshooting.
	DebugLevel
	// WarnLevel marks recoverable problems.
	WarnLevel
	// ErrorLevel marks failed operations.
	ErrorLevel
	// UsrLevel is left to the application, e.g. audit or business events.
	UsrLevel

	AllLevels Level = 0xffffffff
)

// String returns the uppercase name of a single level.
func (l Level) String() string {
	switch l {
	case InfoLevel:
		return "INFO"
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case UsrLevel:
		return "USR"
	case AllLevels:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

var (
	_tagInfo    = []byte("[INF]:")
	_tagDebug   = []byte("[DBG]:")
	_tagWarn    = []byte("[WRN]:")
	_tagError   = []byte("[ERR]:")
	_tagUsr     = []byte("[USR]:")
	_tagUnknown = []byte("[???]:")
)

// tagLen is the width of every level tag.
const tagLen = 6

// tag returns the line tag written in front of the message.
func (l Level) tag() []byte {
	switch l {
	case InfoLevel:
		return _tagInfo
	case DebugLevel:
		return _tagDebug
	case WarnLevel:
		return _tagWarn
	case ErrorLevel:
		return _tagError
	case UsrLevel:
		return _tagUsr
	default:
		return _tagUnknown
	}
}

// ParseLevel converts a level name to its bit with case-insensitive parsing.
// Returns InfoLevel for invalid inputs, ensuring safe defaults in configuration scenarios.
func ParseLevel(levelStr string) Level {
	if l, ok := parseLevel(levelStr); ok {
		return l
	}
	return InfoLevel
}

func parseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO", "INF":
		return InfoLevel, true
	case "DEBUG", "DBG":
		return DebugLevel, true
	case "WARN", "WRN":
		return WarnLevel, true
	case "ERROR", "ERR":
		return ErrorLevel, true
	case "USR", "USER":
		return UsrLevel, true
	case "ALL":
		return AllLevels, true
	case "NONE", "OFF":
		return 0, true
	}
	return 0, false
}

// ParseLevelMask parses a '|' or ',' separated list of level names such as
// "info|warn|error" into a mask. Numeric parts like "0x3" are taken as raw
// bits. An empty string yields the empty mask.
func ParseLevelMask(s string) (Level, error) {
	var mask Level
	for _, part := range splitMask(s) {
		if l, ok := parseLevel(part); ok {
			mask |= l
			continue
		}
		n, err := strconv.ParseUint(part, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, part)
		}
		mask |= Level(n)
	}
	return mask, nil
}

// Dest is a bit mask of output destinations.
type Dest uint32

const (
	// ConsoleDest writes lines to standard output.
	ConsoleDest Dest = 1 << iota
	// FileDest writes lines to rotating memory-mapped files.
	FileDest

	_validDest = ConsoleDest | FileDest
)

// ParseDest parses a '|' or ',' separated list such as "console|file".
func ParseDest(s string) (Dest, error) {
	var d Dest
	for _, part := range splitMask(s) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "console", "stdout":
			d |= ConsoleDest
		case "file":
			d |= FileDest
		case "none":
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidDest, part)
		}
	}
	return d, nil
}

func (d Dest) String() string {
	switch d & _validDest {
	case ConsoleDest:
		return "console"
	case FileDest:
		return "file"
	case _validDest:
		return "console|file"
	default:
		return "none"
	}
}

func splitMask(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
}
