package services

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"time"

	"damagedetect/internal/logger"
	"damagedetect/internal/metrics"
	"damagedetect/internal/models"
)

// Model is a loaded detection model.
type Model interface {
	Predict(img image.Image) ([]models.Box, error)
	Plot(img image.Image, boxes []models.Box) (image.Image, error)
	Names() []string
	Close()
}

// ModelLoader constructs a Model from a weights file.
type ModelLoader func(path string) (Model, error)

// Orchestrator runs inference on single images and shapes the output for display.
type Orchestrator struct {
	model   Model
	names   []string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator wraps a loaded model. The name table is captured once and
// stays fixed for the lifetime of the orchestrator.
func NewOrchestrator(model Model, logger *logger.Logger, metrics *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		model:   model,
		names:   model.Names(),
		logger:  logger,
		metrics: metrics,
	}
}

// Infer runs the model on img. The input is never modified; the annotated image
// is a new image. Zero detections is a successful result.
func (o *Orchestrator) Infer(img image.Image) (*models.DetectionResult, error) {
	if img == nil || img.Bounds().Empty() {
		o.observe(metrics.OutcomeFailure, 0, nil)
		return nil, models.NewError(models.ProcessingFailure, errors.New("image is empty"))
	}

	start := time.Now()

	boxes, err := o.model.Predict(img)
	if err != nil {
		o.observe(metrics.OutcomeFailure, time.Since(start), nil)
		return nil, models.NewError(models.ProcessingFailure, fmt.Errorf("inference failed: %w", err))
	}

	annotated, err := o.model.Plot(img, boxes)
	if err != nil {
		o.observe(metrics.OutcomeFailure, time.Since(start), nil)
		return nil, models.NewError(models.ProcessingFailure, fmt.Errorf("failed to render detections: %w", err))
	}

	detections := make([]models.Detection, 0, len(boxes))
	for _, box := range boxes {
		detections = append(detections, models.Detection{
			ClassID:    box.ClassID,
			ClassName:  o.className(box.ClassID),
			Confidence: clampConfidence(box.Confidence),
			X:          box.Rect.Min.X,
			Y:          box.Rect.Min.Y,
			Width:      box.Rect.Dx(),
			Height:     box.Rect.Dy(),
		})
	}

	result := &models.DetectionResult{Detections: detections, Annotated: annotated}
	o.observe(outcomeOf(result), time.Since(start), detections)

	if result.Empty() {
		o.logger.Info("Inference finished in %s with no detections", time.Since(start).Round(time.Millisecond))
	} else {
		o.logger.Info("Inference finished in %s with %d detection(s)", time.Since(start).Round(time.Millisecond), len(detections))
	}
	return result, nil
}

// Names returns the class-name table of the loaded model.
func (o *Orchestrator) Names() []string {
	return o.names
}

// Close releases the model.
func (o *Orchestrator) Close() {
	o.model.Close()
}

func (o *Orchestrator) className(id int) string {
	if id >= 0 && id < len(o.names) {
		return o.names[id]
	}
	return "class_" + strconv.Itoa(id)
}

func (o *Orchestrator) observe(outcome string, elapsed time.Duration, detections []models.Detection) {
	if o.metrics == nil {
		return
	}
	o.metrics.Inferences.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		o.metrics.InferenceDuration.Observe(elapsed.Seconds())
	}
	for _, d := range detections {
		o.metrics.Detections.WithLabelValues(d.ClassName).Inc()
	}
}

func outcomeOf(result *models.DetectionResult) string {
	if result.Empty() {
		return metrics.OutcomeEmpty
	}
	return metrics.OutcomeSuccess
}

func clampConfidence(c float32) float64 {
	v := float64(c)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
