// Package yolo decodes raw YOLOv8 detection-head output into candidate boxes.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Layout describes the output tensor [1, attrs, anchors] or its transpose.
type Layout struct {
	Attrs        int // 4 box coordinates followed by one score per class
	Anchors      int
	AnchorsMajor bool // true for [1, anchors, attrs]
}

// Classes returns the number of classes the head predicts.
func (l Layout) Classes() int {
	return l.Attrs - 4
}

// ParseLayout interprets the output Mat sizes. YOLOv8 heads always have far
// fewer attributes than anchors, which is how the transposed form is told apart.
func ParseLayout(sizes []int) (Layout, error) {
	if len(sizes) == 2 {
		sizes = append([]int{1}, sizes...)
	}
	if len(sizes) != 3 || sizes[0] != 1 {
		return Layout{}, fmt.Errorf("unexpected output shape %v", sizes)
	}

	attrs, anchors, major := sizes[1], sizes[2], false
	if attrs > anchors {
		attrs, anchors, major = anchors, attrs, true
	}
	if attrs < 5 {
		return Layout{}, fmt.Errorf("output shape %v has no class scores", sizes)
	}
	return Layout{Attrs: attrs, Anchors: anchors, AnchorsMajor: major}, nil
}

// Params maps network coordinates back to the source image.
type Params struct {
	InputWidth     int
	InputHeight    int
	ImageWidth     int
	ImageHeight    int
	ScoreThreshold float32
}

// Candidate is a box that passed the score threshold, before NMS.
type Candidate struct {
	ClassID int
	Score   float32
	Rect    image.Rectangle
}

// Decode extracts candidates from the flattened output tensor.
func Decode(data []float32, layout Layout, p Params) ([]Candidate, error) {
	if len(data) < layout.Attrs*layout.Anchors {
		return nil, fmt.Errorf("output has %d values, expected %d", len(data), layout.Attrs*layout.Anchors)
	}
	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return nil, errors.New("input size must be positive")
	}

	at := func(attr, anchor int) float32 {
		if layout.AnchorsMajor {
			return data[anchor*layout.Attrs+attr]
		}
		return data[attr*layout.Anchors+anchor]
	}

	xFactor := float32(p.ImageWidth) / float32(p.InputWidth)
	yFactor := float32(p.ImageHeight) / float32(p.InputHeight)
	bounds := image.Rect(0, 0, p.ImageWidth, p.ImageHeight)

	var candidates []Candidate
	for i := 0; i < layout.Anchors; i++ {
		classID, score := -1, float32(0)
		for c := 0; c < layout.Classes(); c++ {
			if s := at(4+c, i); s > score {
				classID, score = c, s
			}
		}
		if classID < 0 || score < p.ScoreThreshold || isNaN(score) {
			continue
		}

		cx, cy := at(0, i), at(1, i)
		w, h := at(2, i), at(3, i)
		rect := image.Rect(
			round((cx-w/2)*xFactor),
			round((cy-h/2)*yFactor),
			round((cx+w/2)*xFactor),
			round((cy+h/2)*yFactor),
		).Intersect(bounds)
		if rect.Empty() {
			continue
		}

		candidates = append(candidates, Candidate{ClassID: classID, Score: score, Rect: rect})
	}

	return candidates, nil
}

// ClassOffsetRects shifts every box by its class id times a stride larger than
// the image, so a class-agnostic NMS never suppresses boxes of different classes.
func ClassOffsetRects(candidates []Candidate, imageWidth, imageHeight int) []image.Rectangle {
	stride := max(imageWidth, imageHeight) + 1
	rects := make([]image.Rectangle, len(candidates))
	for i, c := range candidates {
		rects[i] = c.Rect.Add(image.Pt(c.ClassID*stride, c.ClassID*stride))
	}
	return rects
}

// Scores returns the candidate scores in order.
func Scores(candidates []Candidate) []float32 {
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}
	return scores
}

// Select keeps the candidates at indices, in index order. Out-of-range indices are ignored.
func Select(candidates []Candidate, indices []int) []Candidate {
	kept := make([]Candidate, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(candidates) {
			kept = append(kept, candidates[idx])
		}
	}
	return kept
}

func round(v float32) int {
	return int(math.Round(float64(v)))
}

func isNaN(v float32) bool {
	return v != v
}
