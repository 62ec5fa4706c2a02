package log

import "errors"

var (
	// ErrNoDestination is returned when a stream enables levels without any
	// console or file output.
	ErrNoDestination = errors.New("log stream has no destination")
	// ErrManagerStopped is returned when creating a stream on a stopped manager.
	ErrManagerStopped = errors.New("log manager stopped")
	// ErrDuplicateStream is returned when a manager already has a stream of that name.
	ErrDuplicateStream = errors.New("duplicate log stream")
	// ErrInvalidLevel is returned for an unknown level name.
	ErrInvalidLevel = errors.New("invalid log level")
	// ErrInvalidDest is returned for an unknown destination name or bit.
	ErrInvalidDest = errors.New("invalid log destination")
)
