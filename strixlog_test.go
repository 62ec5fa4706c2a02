package strixlog

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchenxuan/strixlog/log"
)

func testCfg(t *testing.T) *log.LogCfg {
	t.Helper()
	cfg := log.DefaultCfg()
	cfg.Dir = t.TempDir()
	cfg.Dest = log.FileDest
	return cfg
}

// TestNew verifies that New builds a running service and publishes its
// stream as the package default.
func TestNew(t *testing.T) {
	svc, err := New(testCfg(t), log.WithStdout(io.Discard))
	require.NoError(t, err)
	require.NotNil(t, svc)

	assert.NotNil(t, svc.Manager, "manager should not be nil")
	assert.NotNil(t, svc.Stream, "default stream should not be nil")
	assert.NotNil(t, svc.Registry, "registry should not be nil")
	assert.Same(t, svc.Stream, log.Default())
	assert.Same(t, svc.Stream, svc.GetStream("default"))

	assert.NoError(t, svc.Stop())
	assert.NotSame(t, svc.Stream, log.Default(), "stop resets the package default")
}

// TestNewInvalidCfg verifies that an invalid configuration is rejected up front.
func TestNewInvalidCfg(t *testing.T) {
	cfg := testCfg(t)
	cfg.Dest = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, log.ErrNoDestination)
}

// TestNewStopsPreviousDefault verifies that New takes over the package
// default and stops the manager that held it.
func TestNewStopsPreviousDefault(t *testing.T) {
	require.NoError(t, log.Initialize(testCfg(t), log.WithStdout(io.Discard)))
	prev := log.DefaultManager()
	require.NotNil(t, prev)

	svc, err := New(testCfg(t), log.WithStdout(io.Discard))
	require.NoError(t, err)
	defer svc.Stop()

	assert.Same(t, svc.Manager, log.DefaultManager())
	// 旧的默认 manager 已停止, 不会再泄漏 drain goroutine
	_, err = prev.CreateStream(&log.StreamCfg{Name: "late", LogLevel: log.InfoLevel, Dest: log.ConsoleDest})
	assert.ErrorIs(t, err, log.ErrManagerStopped)
}

// TestServiceStop verifies that Stop writes pending records and is safe to repeat.
func TestServiceStop(t *testing.T) {
	cfg := testCfg(t)
	svc, err := New(cfg, log.WithStdout(io.Discard))
	require.NoError(t, err)

	log.Info().Msg("before stop")
	assert.NotPanics(t, func() {
		assert.NoError(t, svc.Stop())
	})
	assert.NoError(t, svc.Manager.Stop())

	files, err := filepath.Glob(filepath.Join(cfg.Dir, "*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "strixlog service initialized")
	assert.Contains(t, string(data), "before stop")
	assert.Contains(t, string(data), "strixlog service shutting down")
}

// TestSetupStreams verifies that extra streams are decoded from a config map.
func TestSetupStreams(t *testing.T) {
	svc, err := New(testCfg(t), log.WithStdout(io.Discard))
	require.NoError(t, err)
	defer svc.Stop()

	conf := map[string]any{
		"audit": map[string]any{
			"level": "usr",
			"dest":  "file",
			"dir":   t.TempDir(),
		},
		"trace": map[string]any{
			"name":  "tracing",
			"level": "debug|info",
			"dest":  "console",
		},
	}
	require.NoError(t, svc.SetupStreams(conf))

	audit := svc.GetStream("audit")
	require.NotNil(t, audit)
	assert.True(t, audit.IsLevelForbidden(log.InfoLevel))
	assert.False(t, audit.IsLevelForbidden(log.UsrLevel))

	assert.Nil(t, svc.GetStream("trace"), "an explicit name wins over the key")
	require.NotNil(t, svc.GetStream("tracing"))
	assert.Len(t, svc.Manager.Streams(), 3)

	audit.Usr().Msg("login")
	svc.Refresh()
	assert.NotEmpty(t, audit.FileName())
	assert.EqualValues(t, 1, audit.Stats().DrainedRecords)
}

// TestSetupStreamsErrors verifies the config error paths.
func TestSetupStreamsErrors(t *testing.T) {
	svc, err := New(testCfg(t), log.WithStdout(io.Discard))
	require.NoError(t, err)
	defer svc.Stop()

	err = svc.SetupStreams(map[string]any{"bad": "not a map"})
	assert.ErrorIs(t, err, ErrInvalidConfigFormat)

	err = svc.SetupStreams(map[string]any{"bad": map[string]any{"level": "info", "unknown": 1}})
	assert.ErrorIs(t, err, ErrConfigDecode)

	err = svc.SetupStreams(map[string]any{"default": map[string]any{"level": "info", "dest": "console"}})
	assert.ErrorIs(t, err, log.ErrDuplicateStream)
}

// TestHandler verifies that the metrics endpoint exports the stream counters.
func TestHandler(t *testing.T) {
	svc, err := New(testCfg(t), log.WithStdout(io.Discard))
	require.NoError(t, err)
	defer svc.Stop()

	svc.Stream.Warn().Msg("counted")
	svc.Refresh()

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `strixlog_framed_records_total{stream="default"} 2`)
	assert.Contains(t, string(body), "strixlog_suppressed_errors_total")
	assert.Contains(t, string(body), "go_goroutines")
}
