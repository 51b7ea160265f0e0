package models

import "time"

// Inference is a persisted record of one finished inference.
type Inference struct {
	ID             string      `json:"id"`
	Filename       string      `json:"filename"`
	ModelPath      string      `json:"model_path"`
	DetectionCount int         `json:"detection_count"`
	CreatedAt      time.Time   `json:"created_at"`
	Detections     []Detection `json:"detections,omitempty"`
}

// InferenceFilter narrows history queries.
type InferenceFilter struct {
	ClassName string
	Limit     int
	Offset    int
}
