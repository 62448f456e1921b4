package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("physics", &buf, WARN)

	l.Info("не должно попасть")
	l.Warn("тело %d застряло", 7)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [physics] тело 7 застряло")
	assert.False(t, l.Enabled(DEBUG))
	assert.True(t, l.Enabled(ERROR))
}

func TestLoggerFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger("mesh", dir)
	require.NoError(t, err)
	l.SetLevels(ERROR, TRACE)

	l.Trace("сектор %d", 3)
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "mesh_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[TRACE] [mesh] сектор 3", "в файл пишутся все уровни")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLoggerManager(t *testing.T) {
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	a, err := lm.GetLogger("world")
	require.NoError(t, err)
	b, err := lm.GetLogger("world")
	require.NoError(t, err)
	assert.Same(t, a, b, "логгер компонента создаётся один раз")

	_, err = lm.GetLogger("sim")
	require.NoError(t, err)
	assert.Equal(t, []string{"sim", "world"}, lm.ListComponents())

	require.NoError(t, lm.SetLogLevel("sim", ERROR, ERROR))
	assert.Error(t, lm.SetLogLevel("network", INFO, INFO))

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
