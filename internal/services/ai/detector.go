package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"damagedetect/internal/dataset"
	"damagedetect/internal/logger"
	"damagedetect/internal/models"
	"damagedetect/internal/yolo"

	"gocv.io/x/gocv"
)

// Options tunes pre- and post-processing.
type Options struct {
	InputSize           int
	ConfidenceThreshold float32
	IoUThreshold        float32
}

// palette gives every class a stable colour.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
}

// DetectorService runs a YOLOv8 ONNX export through the OpenCV DNN module.
type DetectorService struct {
	net       gocv.Net
	netMu     sync.Mutex
	loaded    bool
	names     dataset.ClassNames
	options   Options
	modelPath string
	logger    *logger.Logger
}

// NewDetectorService loads the network at modelPath. Any failure is reported as
// a ModelLoadFailure; the caller must not retry with another artifact.
func NewDetectorService(modelPath string, names dataset.ClassNames, options Options, logger *logger.Logger) (*DetectorService, error) {
	if options.InputSize <= 0 {
		options.InputSize = 640
	}

	service := &DetectorService{
		names:     names,
		options:   options,
		modelPath: modelPath,
		logger:    logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, models.NewError(models.ModelLoadFailure, err)
	}

	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	info, err := os.Stat(s.modelPath)
	if err != nil {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("model file is empty: %s", s.modelPath)
	}

	// A failed read leaves the net without a handle; any Net method on it would crash.
	gocv.ClearLastException()
	net := gocv.ReadNetFromONNX(s.modelPath)
	if err := gocv.LastExceptionError(); err != nil {
		return fmt.Errorf("failed to read network from %s: %w", s.modelPath, err)
	}
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.loaded = true
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Names returns the class-name table of the loaded model.
func (s *DetectorService) Names() []string {
	return s.names
}

// Predict runs one forward pass and returns boxes ordered by confidence.
func (s *DetectorService) Predict(img image.Image) ([]models.Box, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	size := s.options.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.netMu.Lock()
	if !s.loaded {
		s.netMu.Unlock()
		return nil, fmt.Errorf("detector is closed")
	}
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.netMu.Unlock()
	defer output.Close()

	layout, err := yolo.ParseLayout(output.Size())
	if err != nil {
		return nil, err
	}
	if len(s.names) > 0 && layout.Classes() != len(s.names) {
		s.logger.Warning("Model predicts %d classes but the name table has %d", layout.Classes(), len(s.names))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	candidates, err := yolo.Decode(data, layout, yolo.Params{
		InputWidth:     size,
		InputHeight:    size,
		ImageWidth:     mat.Cols(),
		ImageHeight:    mat.Rows(),
		ScoreThreshold: s.options.ConfidenceThreshold,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.Box{}, nil
	}

	indices := gocv.NMSBoxes(
		yolo.ClassOffsetRects(candidates, mat.Cols(), mat.Rows()),
		yolo.Scores(candidates),
		s.options.ConfidenceThreshold,
		s.options.IoUThreshold,
	)

	kept := yolo.Select(candidates, indices)
	boxes := make([]models.Box, 0, len(kept))
	for _, c := range kept {
		boxes = append(boxes, models.Box{ClassID: c.ClassID, Confidence: c.Score, Rect: c.Rect})
	}
	return boxes, nil
}

// Plot draws boxes and labels on a copy of img.
func (s *DetectorService) Plot(img image.Image, boxes []models.Box) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	thickness := max(2, (mat.Cols()+mat.Rows())/600)
	scale := float64(thickness) / 3

	for _, box := range boxes {
		c := palette[box.ClassID%len(palette)]
		if err := gocv.Rectangle(&mat, box.Rect, c, thickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s %.2f", s.names.Name(box.ClassID), box.Confidence)
		textSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, scale, 1)
		origin := image.Pt(box.Rect.Min.X, box.Rect.Min.Y-4)
		if origin.Y-textSize.Y < 0 {
			origin.Y = box.Rect.Min.Y + textSize.Y + 4
		}

		background := image.Rect(origin.X, origin.Y-textSize.Y-4, origin.X+textSize.X+4, origin.Y+4)
		if err := gocv.Rectangle(&mat, background, c, -1); err != nil {
			return nil, fmt.Errorf("failed to draw label background: %w", err)
		}
		if err := gocv.PutText(&mat, label, image.Pt(origin.X+2, origin.Y), gocv.FontHersheySimplex, scale, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	annotated, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert annotated image: %w", err)
	}
	return annotated, nil
}

// Close releases the network.
func (s *DetectorService) Close() {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	if s.loaded {
		s.net.Close()
		s.loaded = false
	}
}
