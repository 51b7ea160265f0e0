package main

import (
	"os"
	"path/filepath"
	"testing"

	"damagedetect/internal/config"
	"damagedetect/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingTrainerReturnsFailure(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	logDir := t.TempDir()

	assert.Equal(t, 1, run(config.DefaultTraining(), logDir))

	data, err := os.ReadFile(filepath.Join(logDir, logger.ErrorFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `Trainer "yolo" not found in PATH`)
}
