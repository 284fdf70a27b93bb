package analyzer

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Category is the content class of a region crop.
type Category string

const (
	Table     Category = "Table"
	Flowchart Category = "Flowchart"
	Diagram   Category = "Diagram"
	Graph     Category = "Graph"
	Numerical Category = "Numerical"
	Picture   Category = "Picture"
	Text      Category = "Text"
)

// Categories lists every category in canonical order.
var Categories = []Category{Table, Flowchart, Diagram, Graph, Numerical, Picture, Text}

// Fallback is used when a classification call fails or times out. It is a
// non-Text category, so the region keeps its original crop image.
const Fallback = Picture

// ParseCategory accepts any casing and surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Classifier maps a region crop image reference to its category.
type Classifier interface {
	Classify(ctx context.Context, imageRef string) (Category, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(ctx context.Context, imageRef string) (Category, error)

func (f ClassifierFunc) Classify(ctx context.Context, imageRef string) (Category, error) {
	return f(ctx, imageRef)
}

// ImageLoader resolves an image reference to decoded pixels.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Block represents a detected region of interest in an image
type Block struct {
	Rect       image.Rectangle
	Type       string  // "text", "header", "image", "unknown"
	Confidence float64 // 0.0-1.0
}

// Detector is the interface for image analysis strategies
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}
