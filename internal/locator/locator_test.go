package locator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"damagedetect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pattern = "yolov8s_carsdd_fine_tuned*"

// makeRun creates root/name with an optional weights file and sets the run
// directory's modification time.
func makeRun(t *testing.T, root, name string, withWeights bool, modTime time.Time) string {
	t.Helper()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, WeightsDir), 0755))
	if withWeights {
		require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsDir, "best.onnx"), []byte("onnx"), 0644))
	}
	require.NoError(t, os.Chtimes(dir, modTime, modTime))
	return dir
}

func TestLocate_NoRuns(t *testing.T) {
	root := t.TempDir()
	l := New([]string{root, filepath.Join(root, "missing")}, pattern, "best.onnx")

	artifact, err := l.Locate()
	assert.True(t, errors.Is(err, models.ErrModelUnavailable))
	assert.False(t, artifact.Exists)
	assert.Empty(t, artifact.Path)
}

func TestLocate_SingleRunIsDeterministic(t *testing.T) {
	root := t.TempDir()
	dir := makeRun(t, root, "yolov8s_carsdd_fine_tuned", true, time.Now())
	l := New([]string{root}, pattern, "best.onnx")

	for i := 0; i < 3; i++ {
		artifact, err := l.Locate()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, WeightsDir, "best.onnx"), artifact.Path)
		assert.Equal(t, dir, artifact.RunDir)
		assert.True(t, artifact.Exists)
	}
}

func TestLocate_PicksMostRecentRun(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour)
	makeRun(t, root, "yolov8s_carsdd_fine_tuned", true, base)
	newest := makeRun(t, root, "yolov8s_carsdd_fine_tuned2", true, base.Add(30*time.Minute))
	makeRun(t, root, "yolov8s_carsdd_fine_tuned3", true, base.Add(10*time.Minute))

	artifact, err := New([]string{root}, pattern, "best.onnx").Locate()
	require.NoError(t, err)
	assert.Equal(t, newest, artifact.RunDir)
}

func TestLocate_EqualTimesUseReversePathOrder(t *testing.T) {
	root := t.TempDir()
	ts := time.Now().Add(-time.Minute).Truncate(time.Second)
	makeRun(t, root, "yolov8s_carsdd_fine_tuned2", true, ts)
	last := makeRun(t, root, "yolov8s_carsdd_fine_tuned3", true, ts)

	artifact, err := New([]string{root}, pattern, "best.onnx").Locate()
	require.NoError(t, err)
	assert.Equal(t, last, artifact.RunDir)
}

func TestLocate_SkipsRunWithoutWeights(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour)
	complete := makeRun(t, root, "yolov8s_carsdd_fine_tuned", true, base)
	makeRun(t, root, "yolov8s_carsdd_fine_tuned2", false, base.Add(time.Minute))

	artifact, err := New([]string{root}, pattern, "best.onnx").Locate()
	require.NoError(t, err)
	assert.Equal(t, complete, artifact.RunDir)
}

func TestLocate_FallsBackToSecondaryRoot(t *testing.T) {
	primary := t.TempDir()
	secondary := t.TempDir()
	makeRun(t, primary, "yolov8s_carsdd_fine_tuned", false, time.Now())
	want := makeRun(t, secondary, "yolov8s_carsdd_fine_tuned", true, time.Now().Add(-time.Hour))

	artifact, err := New([]string{primary, secondary}, pattern, "best.onnx").Locate()
	require.NoError(t, err)
	assert.Equal(t, want, artifact.RunDir)
}

func TestLocate_PrimaryRootWins(t *testing.T) {
	primary := t.TempDir()
	secondary := t.TempDir()
	want := makeRun(t, primary, "yolov8s_carsdd_fine_tuned", true, time.Now().Add(-time.Hour))
	makeRun(t, secondary, "yolov8s_carsdd_fine_tuned", true, time.Now())

	artifact, err := New([]string{primary, secondary}, pattern, "best.onnx").Locate()
	require.NoError(t, err)
	assert.Equal(t, want, artifact.RunDir)
}

func TestLocate_IgnoresFilesMatchingPattern(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "yolov8s_carsdd_fine_tuned.txt"), nil, 0644))

	_, err := New([]string{root}, pattern, "best.onnx").Locate()
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
}

func TestLocate_WeightsDirectoryIsNotAFile(t *testing.T) {
	root := t.TempDir()
	dir := makeRun(t, root, "yolov8s_carsdd_fine_tuned", false, time.Now())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, WeightsDir, "best.onnx"), 0755))

	_, err := New([]string{root}, pattern, "best.onnx").Locate()
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
}

func TestLocate_BadPattern(t *testing.T) {
	_, err := New([]string{t.TempDir()}, "[", "best.onnx").Locate()
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
}

func TestRuns_OrderedPerRoot(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour)
	older := makeRun(t, root, "yolov8s_carsdd_fine_tuned", false, base)
	newer := makeRun(t, root, "yolov8s_carsdd_fine_tuned2", true, base.Add(time.Minute))

	runs, err := New([]string{root}, pattern, "best.onnx").Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].Dir)
	assert.Equal(t, older, runs[1].Dir)
}
