//go:build linux || darwin || freebsd

package log

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleAppenderTerminal(t *testing.T) {
	master, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	var got bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&got, master)
		close(done)
	}()

	mgr := NewManager(nil, WithStdout(tty))
	assert.True(t, mgr.console.color, "a pty is a terminal")

	s, err := mgr.CreateStream(&StreamCfg{Name: "tty", LogLevel: AllLevels, Dest: ConsoleDest})
	require.NoError(t, err)
	s.Warn().Msg("colored")
	require.NoError(t, mgr.Stop())

	_ = tty.Close()
	<-done
	_ = master.Close()

	out := got.String()
	assert.True(t, strings.Contains(out, "\033[1;33;40m"), "warn lines are yellow: %q", out)
	assert.Contains(t, out, "colored")
}
