// Package metrics exports the counters of the logging pipeline to Prometheus.
package metrics

// Group related constants, prefixed with Group. The group is the Prometheus subsystem.
const (
	// GroupStrixLog is the group name for strixlog metrics.
	GroupStrixLog = "strixlog"
)

// Metric related constants
const (
	// NameFramedRecordsTotal: Total number of records staged by callers.
	// group:strixlog dimension:stream
	NameFramedRecordsTotal = "framed_records_total"

	// NameFramedBytesTotal: Total bytes of records staged by callers.
	// group:strixlog dimension:stream
	NameFramedBytesTotal = "framed_bytes_total"

	// NameDrainedRecordsTotal: Total number of records delivered by the drain goroutine.
	// group:strixlog dimension:stream
	NameDrainedRecordsTotal = "drained_records_total"

	// NameDrainedBytesTotal: Total bytes delivered by the drain goroutine.
	// group:strixlog dimension:stream
	NameDrainedBytesTotal = "drained_bytes_total"

	// NameDirectRecordsTotal: Total number of records written to stdout after shutdown.
	// group:strixlog dimension:stream
	NameDirectRecordsTotal = "direct_records_total"

	// NameBusySignalsTotal: Total number of early drain wakeups caused by a full slot.
	// group:strixlog dimension:stream alarm:Sustained growth means the flush threshold is too small.
	NameBusySignalsTotal = "busy_signals_total"

	// NameRotationsTotal: Total number of log file rotations.
	// group:strixlog dimension:stream
	NameRotationsTotal = "rotations_total"

	// NameDroppedBytesTotal: Total bytes that could not be written to a log file.
	// group:strixlog dimension:stream alarm:Any increase.
	NameDroppedBytesTotal = "dropped_bytes_total"

	// NameSlots: Number of caller slots allocated by a stream.
	// group:strixlog dimension:stream
	NameSlots = "slots"

	// NameFileOffsetBytes: Bytes written to the current log file.
	// group:strixlog dimension:stream
	NameFileOffsetBytes = "file_offset_bytes"

	// NameSuppressedErrorsTotal: Total number of internal errors not printed because of rate limiting.
	// group:strixlog dimension:
	NameSuppressedErrorsTotal = "suppressed_errors_total"
)

// Dimension related definitions, must be prefixed with Dim. The comment should include the group.
const (
	// DimStream is the dimension for stream name.
	// group:strixlog
	DimStream = "stream"
)
