package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTraining_IsFixed(t *testing.T) {
	training := DefaultTraining()

	assert.Equal(t, "yolov8s.pt", training.BaseModel)
	assert.Equal(t, "dataset.yaml", training.DatasetDescriptor)
	assert.Equal(t, 50, training.Epochs)
	assert.Equal(t, 640, training.ImageSize)
	assert.Equal(t, 16, training.BatchSize)
	assert.Equal(t, "yolov8s_carsdd_fine_tuned", training.RunName)
	assert.Equal(t, filepath.Join("runs", "detect"), training.Project)
	assert.Equal(t, DefaultTraining(), training)
}

func TestDefault_SearchRootsStartWithProject(t *testing.T) {
	cfg := Default()

	require.NotEmpty(t, cfg.SearchRoots)
	assert.Equal(t, filepath.Join("runs", "detect"), cfg.SearchRoots[0])
	assert.Equal(t, "yolov8s_carsdd_fine_tuned*", cfg.RunPattern)
	assert.False(t, cfg.HistoryEnabled())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("SEARCH_ROOTS", " /a , ,/b")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.4")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("HISTORY_DB", "history.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"/a", "/b"}, cfg.SearchRoots)
	assert.InDelta(t, 0.4, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, int64(5), cfg.MaxUploadSize)
	assert.True(t, cfg.HistoryEnabled())
	assert.Equal(t, DefaultTraining(), cfg.Training)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "abc")
	t.Setenv("IOU_THRESHOLD", "x")
	t.Setenv("SEARCH_ROOTS", " , ")

	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.IoUThreshold, cfg.IoUThreshold)
	assert.Equal(t, def.SearchRoots, cfg.SearchRoots)
}
