package analyzer

import (
	"context"
	"fmt"
	"image"
	"sort"
)

// ContrastClassifier is a local, offline classifier built on the contrast
// detector. It only tells text-like crops from tables, pictures and
// diagrams; finer classes need the remote classifier.
type ContrastClassifier struct {
	Loader   ImageLoader
	Detector *ContrastDetector
}

func NewContrastClassifier(loader ImageLoader) *ContrastClassifier {
	return &ContrastClassifier{Loader: loader, Detector: NewContrastDetector()}
}

func (c *ContrastClassifier) Classify(ctx context.Context, imageRef string) (Category, error) {
	img, err := c.Loader.Load(ctx, imageRef)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", imageRef, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blocks, err := c.Detector.Detect(img)
	if err != nil {
		return "", err
	}
	return ClassifyBlocks(img.Bounds(), blocks), nil
}

// ClassifyBlocks derives a category from the layout of detected blocks:
// mostly flat lines read as Text, a grid of cells as Table, one dominant
// block as Picture, anything else as Diagram.
func ClassifyBlocks(bounds image.Rectangle, blocks []Block) Category {
	if len(blocks) == 0 {
		return Picture
	}

	pageArea := float64(bounds.Dx() * bounds.Dy())
	var textual int
	var largest float64
	for _, b := range blocks {
		if b.Type == "text" {
			textual++
		}
		if a := float64(b.Rect.Dx() * b.Rect.Dy()); a > largest {
			largest = a
		}
	}

	switch {
	case pageArea > 0 && largest/pageArea > 0.5 && len(blocks) <= 2:
		return Picture
	case isGrid(blocks):
		return Table
	case float64(textual)/float64(len(blocks)) >= 0.6:
		return Text
	default:
		return Diagram
	}
}

// isGrid reports at least three rows and three columns of aligned blocks.
func isGrid(blocks []Block) bool {
	if len(blocks) < 9 {
		return false
	}
	const tolerance = 8
	rows := clusters(blocks, func(b Block) int { return b.Rect.Min.Y }, tolerance)
	cols := clusters(blocks, func(b Block) int { return b.Rect.Min.X }, tolerance)
	return rows >= 3 && cols >= 3
}

func clusters(blocks []Block, key func(Block) int, tolerance int) int {
	values := make([]int, len(blocks))
	for i, b := range blocks {
		values[i] = key(b)
	}
	sort.Ints(values)

	n := 1
	for i := 1; i < len(values); i++ {
		if values[i]-values[i-1] > tolerance {
			n++
		}
	}
	return n
}

// NewClassifier creates a classifier based on the specified variant
func NewClassifier(variant string, loader ImageLoader, remote Classifier) (Classifier, error) {
	switch variant {
	case "contrast", "":
		return NewContrastClassifier(loader), nil
	case "remote":
		if remote == nil {
			return nil, fmt.Errorf("remote classifier not configured")
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown classifier variant: %s", variant)
	}
}
