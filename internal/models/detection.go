package models

import (
	"image"
	"time"
)

// WeightsArtifact points at a serialized model checkpoint produced by a training run.
type WeightsArtifact struct {
	Path    string    `json:"path"`
	RunDir  string    `json:"run_dir"`
	Exists  bool      `json:"exists"`
	ModTime time.Time `json:"mod_time"`
}

// Box is one raw prediction as reported by the detection model.
type Box struct {
	ClassID    int
	Confidence float32
	Rect       image.Rectangle
}

// Detection is a display-ready prediction with its class name resolved.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// DetectionResult is the outcome of one inference call.
type DetectionResult struct {
	Detections []Detection
	Annotated  image.Image
}

// Empty reports whether the model ran and found nothing.
func (r *DetectionResult) Empty() bool {
	return len(r.Detections) == 0
}
