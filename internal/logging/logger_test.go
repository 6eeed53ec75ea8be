package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileAndConsole(t *testing.T) {
	var console bytes.Buffer
	l, err := New(&Config{
		LogDir:     t.TempDir(),
		Level:      LevelInfo,
		MaxHistory: 10,
		Console:    true,
		File:       true,
		Output:     &console,
	})
	require.NoError(t, err)

	l.Debug("engine", "hidden", nil)
	l.Info("cache", "stored timeline", map[string]interface{}{"key": "ab12", "backend": "file"})
	l.Error("extract", "rhubarb failed", errors.New("exit status 1"), nil)
	require.NoError(t, l.Close())

	out := console.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "stored timeline")
	assert.Contains(t, out, "rhubarb failed")

	data, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"cache"`)
	assert.Contains(t, string(data), `"app":"visemekit"`)
	assert.True(t, strings.HasPrefix(filepath.Base(l.GetLogPath()), "visemekit_"))
}

func TestLogger_History(t *testing.T) {
	l, err := New(&Config{Level: LevelDebug, MaxHistory: 3})
	require.NoError(t, err)
	assert.Empty(t, l.GetLogPath())

	for _, msg := range []string{"one", "two", "three", "four"} {
		l.Info("test", msg, nil)
	}
	l.Warn("test", "five", map[string]interface{}{"b": 2, "a": 1})

	hist := l.GetHistory(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "three", hist[0].Message)
	assert.Equal(t, "five", hist[2].Message)
	assert.Equal(t, "warn", hist[2].Level)
	assert.Equal(t, "a=1, b=2", hist[2].Data)

	last := l.GetHistory(1)
	require.Len(t, last, 1)
	assert.Equal(t, "five", last[0].Message)

	l.Error("test", "six", errors.New("boom"), nil)
	assert.Equal(t, "error=boom", l.GetHistory(1)[0].Data)
}

func TestLevelMapping(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.zerologLevel().String())
	assert.Equal(t, "warn", LogLevel("WARN").zerologLevel().String())
	assert.Equal(t, "info", LogLevel("verbose").zerologLevel().String())
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("x", "y", nil)
	assert.Len(t, l.GetHistory(0), 1)
	assert.NoError(t, l.Close())
}
