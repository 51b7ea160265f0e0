package services

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"damagedetect/internal/locator"
	"damagedetect/internal/logger"
	"damagedetect/internal/metrics"
	"damagedetect/internal/models"
	"damagedetect/internal/repository/sqlite"
	"damagedetect/internal/services/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPattern = "yolov8s_carsdd_fine_tuned*"

func trainedRoot(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	weights := filepath.Join(root, "yolov8s_carsdd_fine_tuned", locator.WeightsDir)
	require.NoError(t, os.MkdirAll(weights, 0755))
	path := filepath.Join(weights, "best.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0644))
	return root, path
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func loaderFor(model Model, calls *int) ModelLoader {
	return func(path string) (Model, error) {
		*calls++
		return model, nil
	}
}

func TestManager_StartWithoutRunsIsUnavailable(t *testing.T) {
	loc := locator.New([]string{t.TempDir()}, testPattern, "best.onnx")
	calls := 0
	m := metrics.New()
	manager := NewManager(loc, loaderFor(newMockModel(nil), &calls), logger.Discard(), m)

	err := manager.Start()
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
	assert.Zero(t, calls)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelLoaded))

	_, err = manager.Detect(pngBytes(t, 8, 8), "car.png")
	assert.ErrorIs(t, err, models.ErrModelUnavailable)

	status := manager.Status()
	assert.False(t, status.Ready)
	assert.Equal(t, "model_unavailable", status.ErrorKind)
	assert.Empty(t, status.Runs)
}

func TestManager_StartLoadFailure(t *testing.T) {
	root, path := trainedRoot(t)
	loc := locator.New([]string{root}, testPattern, "best.onnx")

	var loaded string
	loader := func(p string) (Model, error) {
		loaded = p
		return nil, errors.New("unsupported opset")
	}
	manager := NewManager(loc, loader, logger.Discard(), nil)

	err := manager.Start()
	assert.ErrorIs(t, err, models.ErrModelLoadFailure)
	assert.Equal(t, path, loaded)

	status := manager.Status()
	assert.Equal(t, "model_load_failure", status.ErrorKind)
	assert.Contains(t, status.Error, "unsupported opset")
	assert.Equal(t, path, status.Artifact.Path)
}

func TestManager_LoadsOnce(t *testing.T) {
	root, path := trainedRoot(t)
	loc := locator.New([]string{root}, testPattern, "best.onnx")

	calls := 0
	m := metrics.New()
	manager := NewManager(loc, loaderFor(newMockModel([]string{"dent"}), &calls), logger.Discard(), m)

	require.NoError(t, manager.Start())
	require.NoError(t, manager.Start())
	assert.Equal(t, 1, calls)
	assert.Equal(t, path, manager.Artifact().Path)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoaded))

	status := manager.Status()
	assert.True(t, status.Ready)
	assert.Equal(t, []string{"dent"}, status.Names)
	assert.Len(t, status.Runs, 1)
}

func TestManager_DetectCorruptThenValid(t *testing.T) {
	root, _ := trainedRoot(t)
	loc := locator.New([]string{root}, testPattern, "best.onnx")

	boxes := []models.Box{{ClassID: 0, Confidence: 0.87, Rect: image.Rect(1, 1, 10, 10)}}
	model := newMockModel([]string{"dent"})
	model.On("Predict", mock.Anything).Return(boxes, nil)
	model.On("Plot", mock.Anything, boxes).Return(testImage(40, 30), nil)

	calls := 0
	manager := NewManager(loc, loaderFor(model, &calls), logger.Discard(), metrics.New())
	require.NoError(t, manager.Start())

	_, err := manager.Detect([]byte("definitely not an image"), "notes.txt")
	assert.ErrorIs(t, err, models.ErrProcessingFailure)

	truncated := pngBytes(t, 40, 30)[:40]
	_, err = manager.Detect(truncated, "broken.png")
	assert.ErrorIs(t, err, models.ErrProcessingFailure)

	outcome, err := manager.Detect(pngBytes(t, 40, 30), "uploads/car.png")
	require.NoError(t, err)
	assert.Equal(t, "car.png", outcome.Filename)
	assert.Equal(t, "png", outcome.Format)
	assert.NotEmpty(t, outcome.ID)
	require.Len(t, outcome.Result.Detections, 1)
	assert.Equal(t, "dent", outcome.Result.Detections[0].ClassName)

	_, format, err := image.Decode(bytes.NewReader(outcome.Annotated))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1, calls)
}

func TestManager_DetectRecordsHistory(t *testing.T) {
	root, path := trainedRoot(t)
	loc := locator.New([]string{root}, testPattern, "best.onnx")

	db, err := sqlite.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := sqlite.NewInferenceRepository(db)
	store := storage.NewImageStore(t.TempDir())

	model := newMockModel([]string{"dent", "scratch"})
	model.On("Predict", mock.Anything).Return([]models.Box{}, nil)
	model.On("Plot", mock.Anything, []models.Box{}).Return(testImage(16, 16), nil)

	calls := 0
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	manager := NewManager(loc, loaderFor(model, &calls), logger.Discard(), nil,
		WithHistory(repo, store),
		WithClock(func() time.Time { return now }, func() string { return "inference-1" }),
	)

	outcome, err := manager.Detect(pngBytes(t, 16, 16), "car.png")
	require.NoError(t, err)
	assert.True(t, outcome.Result.Empty())

	record, err := repo.GetByID("inference-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "car.png", record.Filename)
	assert.Equal(t, path, record.ModelPath)
	assert.Zero(t, record.DetectionCount)
	assert.True(t, now.Equal(record.CreatedAt))

	stored, err := store.Path(ImageName("inference-1"))
	require.NoError(t, err)
	assert.FileExists(t, stored)

	require.NoError(t, manager.DeleteInference("inference-1"))
	assert.NoFileExists(t, stored)
	record, err = repo.GetByID("inference-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestManager_DeleteWithoutHistory(t *testing.T) {
	manager := NewManager(locator.New(nil, testPattern, "best.onnx"), nil, logger.Discard(), nil)
	assert.Error(t, manager.DeleteInference("x"))
}
