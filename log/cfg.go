package log

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

const (
	_defaultAsyncWriteMillSec = 200
	_defaultSyncMillSec       = 1000
	_defaultFileSplitMB       = 32
	_defaultFlushThresholdKB  = 2048
	_defaultStreamName        = "default"
)

// ManagerCfg configures the background drain goroutine shared by all streams
// of a Manager.
type ManagerCfg struct {
	// AsyncWriteMillSec is the interval of the periodic drain that moves staged
	// records to their destinations even when no stream crossed its flush threshold.
	// Default: 200ms for reasonable trade-off between responsiveness and throughput.
	AsyncWriteMillSec int `mapstructure:"asyncWriteMillSec"`

	// SyncMillSec is the interval for msync of open log files.
	// Zero selects the default of 1000ms, a negative value syncs only on
	// Refresh and Close.
	SyncMillSec int `mapstructure:"syncMillSec"`
}

// StreamCfg configures one log stream. It is fixed once the stream is created.
type StreamCfg struct {
	// Name identifies the stream in metrics.
	Name string `mapstructure:"name"`

	// LogLevel is the mask of enabled levels. Zero disables the stream: every
	// record is filtered and no destination is required.
	LogLevel Level `mapstructure:"level"`

	// Dest selects console and/or file output.
	Dest Dest `mapstructure:"dest"`

	// Dir is the directory that receives log files. It is created on demand.
	Dir string `mapstructure:"dir"`

	// FileSplitMB determines the file rotation threshold in megabytes.
	FileSplitMB int `mapstructure:"splitMB"`

	// FlushThresholdKB is the staged size of a single caller slot above which
	// the drain goroutine is woken ahead of its next tick.
	FlushThresholdKB int `mapstructure:"flushThresholdKB"`

	// UTC renders timestamps in UTC instead of local time.
	UTC bool `mapstructure:"utc"`
}

// LogCfg is the flat configuration of the package-level default logger. It
// carries both the manager and the default stream settings.
type LogCfg struct {
	ManagerCfg `mapstructure:",squash"`
	StreamCfg  `mapstructure:",squash"`
}

// CheckCfgValid applies defaults to unset manager fields.
func (cfg *ManagerCfg) CheckCfgValid() {
	if cfg.AsyncWriteMillSec <= 0 {
		cfg.AsyncWriteMillSec = _defaultAsyncWriteMillSec
	}
	if cfg.SyncMillSec == 0 {
		cfg.SyncMillSec = _defaultSyncMillSec
	}
}

// Validate validates the manager configuration for correctness.
func (cfg *ManagerCfg) Validate() error {
	if cfg.AsyncWriteMillSec < 10 {
		return fmt.Errorf("async write interval must be at least 10ms, got %dms", cfg.AsyncWriteMillSec)
	}
	return nil
}

// CheckCfgValid applies defaults to unset stream fields. LogLevel and Dest
// are left alone since their zero values are meaningful.
func (cfg *StreamCfg) CheckCfgValid() {
	if cfg.Name == "" {
		cfg.Name = _defaultStreamName
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.FileSplitMB <= 0 {
		cfg.FileSplitMB = _defaultFileSplitMB
	}
	if cfg.FlushThresholdKB <= 0 {
		cfg.FlushThresholdKB = _defaultFlushThresholdKB
	}
}

// Validate validates the stream configuration for correctness and consistency.
func (cfg *StreamCfg) Validate() error {
	if cfg.LogLevel == 0 {
		// disabled stream, nothing else matters
		return nil
	}

	if cfg.Dest&^_validDest != 0 {
		return fmt.Errorf("%w: unknown bits %#x", ErrInvalidDest, uint32(cfg.Dest&^_validDest))
	}
	if cfg.Dest&_validDest == 0 {
		return ErrNoDestination
	}

	// Validate file split size
	if cfg.FileSplitMB < 1 || cfg.FileSplitMB > 1024 {
		return fmt.Errorf("file split size must be between 1MB and 1024MB, got %dMB", cfg.FileSplitMB)
	}

	if cfg.FlushThresholdKB < 1 {
		return fmt.Errorf("flush threshold must be at least 1KB, got %dKB", cfg.FlushThresholdKB)
	}

	if cfg.Dest&FileDest != 0 && cfg.Dir == "" {
		return errors.New("log dir cannot be empty when file output is enabled")
	}
	return nil
}

// CheckCfgValid applies defaults to both parts of the configuration.
func (cfg *LogCfg) CheckCfgValid() {
	cfg.ManagerCfg.CheckCfgValid()
	cfg.StreamCfg.CheckCfgValid()
}

// Validate validates both parts of the configuration.
func (cfg *LogCfg) Validate() error {
	return errors.Join(cfg.ManagerCfg.Validate(), cfg.StreamCfg.Validate())
}

// DecodeCfg decodes a raw configuration map, as read from YAML or JSON, into
// a LogCfg with defaults applied. Levels and destinations may be given as
// numbers or as strings such as "info|warn" and "console|file".
func DecodeCfg(raw map[string]any) (*LogCfg, error) {
	cfg := &LogCfg{}
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}

	cfg.CheckCfgValid()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeStreamCfg decodes the configuration of a single stream the same way as DecodeCfg.
func DecodeStreamCfg(raw map[string]any) (*StreamCfg, error) {
	cfg := &StreamCfg{}
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}

	cfg.CheckCfgValid()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(levelDecodeHook, destDecodeHook),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           result,
	})
	if err != nil {
		return fmt.Errorf("create log config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode log config: %w", err)
	}
	return nil
}

var (
	_levelType = reflect.TypeOf(Level(0))
	_destType  = reflect.TypeOf(Dest(0))
)

func levelDecodeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != _levelType {
		return data, nil
	}
	return ParseLevelMask(data.(string))
}

func destDecodeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != _destType {
		return data, nil
	}
	return ParseDest(data.(string))
}

var _defaultCfg = LogCfg{
	ManagerCfg: ManagerCfg{
		AsyncWriteMillSec: _defaultAsyncWriteMillSec,
		SyncMillSec:       _defaultSyncMillSec,
	},
	StreamCfg: StreamCfg{
		Name:             _defaultStreamName,
		LogLevel:         AllLevels,
		Dest:             FileDest | ConsoleDest,
		Dir:              "./log",
		FileSplitMB:      _defaultFileSplitMB,
		FlushThresholdKB: _defaultFlushThresholdKB,
	},
}

// DefaultCfg returns a copy of the configuration used by Initialize(nil).
func DefaultCfg() *LogCfg {
	cfg := _defaultCfg
	return &cfg
}
