package ai

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"damagedetect/internal/dataset"
	"damagedetect/internal/logger"
	"damagedetect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{InputSize: 640, ConfidenceThreshold: 0.25, IoUThreshold: 0.7}

func filledImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	return img
}

func TestNewDetectorService_LoadFailures(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.onnx")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	corrupt := filepath.Join(dir, "corrupt.onnx")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not an onnx graph \x00\x01\x02\xff"), 0644))

	pytorch := filepath.Join(dir, "best.onnx")
	require.NoError(t, os.WriteFile(pytorch, []byte("PK\x03\x04archive/data.pkl"), 0644))

	for name, path := range map[string]string{
		"missing":  filepath.Join(dir, "missing.onnx"),
		"empty":    empty,
		"corrupt":  corrupt,
		"not onnx": pytorch,
	} {
		t.Run(name, func(t *testing.T) {
			detector, err := NewDetectorService(path, dataset.ClassNames{"dent"}, testOptions, logger.Discard())
			assert.ErrorIs(t, err, models.ErrModelLoadFailure)
			assert.Nil(t, detector)
		})
	}
}

func TestDetectorService_PlotReturnsNewImage(t *testing.T) {
	detector := &DetectorService{
		names:   dataset.ClassNames{"dent", "scratch"},
		options: testOptions,
		logger:  logger.Discard(),
	}

	img := filledImage(120, 80)
	before := make([]uint8, len(img.Pix))
	copy(before, img.Pix)

	boxes := []models.Box{
		{ClassID: 0, Confidence: 0.9, Rect: image.Rect(10, 10, 60, 50)},
		{ClassID: 5, Confidence: 0.4, Rect: image.Rect(0, 0, 30, 20)},
	}

	annotated, err := detector.Plot(img, boxes)
	require.NoError(t, err)
	require.NotNil(t, annotated)

	assert.Equal(t, img.Bounds().Size(), annotated.Bounds().Size())
	assert.Equal(t, before, img.Pix)

	r, g, b, _ := annotated.At(10, 30).RGBA()
	assert.NotEqual(t, [3]uint32{40<<8 | 40, 90<<8 | 90, 160<<8 | 160}, [3]uint32{r, g, b})
}

func TestDetectorService_PlotWithoutBoxes(t *testing.T) {
	detector := &DetectorService{options: testOptions, logger: logger.Discard()}

	annotated, err := detector.Plot(filledImage(32, 32), nil)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(32, 32), annotated.Bounds().Size())
}

func TestDetectorService_PredictAfterClose(t *testing.T) {
	detector := &DetectorService{options: testOptions, logger: logger.Discard()}
	detector.Close()

	_, err := detector.Predict(filledImage(16, 16))
	assert.Error(t, err)
}

// DETECT_TEST_MODEL points at a real YOLOv8 ONNX export; without it the
// end-to-end check is skipped.
func TestDetectorService_PredictWithModel(t *testing.T) {
	path := os.Getenv("DETECT_TEST_MODEL")
	if path == "" {
		t.Skip("DETECT_TEST_MODEL not set")
	}

	detector, err := NewDetectorService(path, nil, testOptions, logger.Discard())
	require.NoError(t, err)
	defer detector.Close()

	img := filledImage(320, 240)
	first, err := detector.Predict(img)
	require.NoError(t, err)
	second, err := detector.Predict(img)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i, box := range first {
		assert.GreaterOrEqual(t, box.Confidence, float32(0))
		assert.LessOrEqual(t, box.Confidence, float32(1))
		assert.True(t, box.Rect.In(img.Bounds()))
		if i > 0 {
			assert.GreaterOrEqual(t, first[i-1].Confidence, box.Confidence)
		}
	}
}
