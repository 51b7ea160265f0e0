package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	l.Info("loaded %s", "model")
	l.Warning("slow inference %d ms", 900)
	l.Error("decode failed")

	info, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(info), "loaded model")
	assert.Contains(t, string(info), "logger_test.go")

	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Contains(t, string(warning), "slow inference 900 ms")
	assert.NotContains(t, string(warning), "loaded model")

	errorLog, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Contains(t, string(errorLog), "decode failed")
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	l.Info("first entry")
	require.NoError(t, l.CleanLogs(InfoFile))

	data, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Empty(t, data)

	l.Info("second entry")
	data, err = os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "second entry")
	assert.NotContains(t, string(data), "first entry")

	assert.Error(t, l.CleanLogs("other.log"))
}
