package analyzer

import (
	"image"
	"image/draw"
	"math"
)

// ContrastDetector implements edge-based region detection using Sobel operator
type ContrastDetector struct {
	MinBlockArea  int     // Minimum area in pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,  // ~22x22 pixels minimum
		EdgeThreshold: 30.0, // Moderate sensitivity
	}
}

// Detect finds regions of interest using edge detection and morphology.
// Blocks are tagged "text" when they are flat lines, "image" when they are
// large and close to square.
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	gray := toGrayscale(img)
	edges := sobelEdgeDetection(gray, d.EdgeThreshold)
	dilated := dilate(edges, 5, 2)
	contours := findContours(dilated)

	bounds := img.Bounds()
	pageArea := bounds.Dx() * bounds.Dy()

	blocks := []Block{}
	for _, rect := range contours {
		area := rect.Dx() * rect.Dy()
		if area < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:       rect,
			Type:       blockType(rect, pageArea),
			Confidence: 0.7,
		})
	}

	return blocks, nil
}

func blockType(rect image.Rectangle, pageArea int) string {
	w, h := float64(rect.Dx()), float64(rect.Dy())
	switch {
	case h > 0 && w/h >= 4:
		return "text"
	case pageArea > 0 && float64(rect.Dx()*rect.Dy())/float64(pageArea) > 0.25:
		return "image"
	default:
		return "unknown"
	}
}

// toGrayscale converts an image to a zero-origin grayscale copy
func toGrayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// sobelEdgeDetection applies Sobel operator to detect edges
func sobelEdgeDetection(gray *image.Gray, threshold float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := image.NewGray(gray.Rect)
	px := func(x, y int) float64 { return float64(gray.Pix[y*gray.Stride+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sumX := -px(x-1, y-1) + px(x+1, y-1) - 2*px(x-1, y) + 2*px(x+1, y) - px(x-1, y+1) + px(x+1, y+1)
			sumY := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) + px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)
			if math.Sqrt(sumX*sumX+sumY*sumY) > threshold {
				edges.Pix[y*edges.Stride+x] = 255
			}
		}
	}

	return edges
}

// dilate performs morphological dilation to connect nearby edges
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	half := kernelSize / 2
	result := img

	for iter := 0; iter < iterations; iter++ {
		temp := image.NewGray(img.Rect)
		for y := half; y < h-half; y++ {
			for x := half; x < w-half; x++ {
				var maxVal uint8
				for ky := -half; ky <= half && maxVal < 255; ky++ {
					row := (y + ky) * result.Stride
					for kx := -half; kx <= half; kx++ {
						if v := result.Pix[row+x+kx]; v > maxVal {
							maxVal = v
						}
					}
				}
				temp.Pix[y*temp.Stride+x] = maxVal
			}
		}
		result = temp
	}

	return result
}

// findContours finds bounding rectangles of connected white regions
func findContours(img *image.Gray) []image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	visited := make([]bool, w*h)
	contours := []image.Rectangle{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] > 128 && !visited[y*w+x] {
				contours = append(contours, floodFill(img, visited, x, y))
			}
		}
	}

	return contours
}

// floodFill performs flood fill and returns bounding rectangle
func floodFill(img *image.Gray, visited []bool, startX, startY int) image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	minX, minY, maxX, maxY := startX, startY, startX, startY

	stack := []image.Point{{X: startX, Y: startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		i := p.Y*w + p.X
		if visited[i] || img.Pix[p.Y*img.Stride+p.X] <= 128 {
			continue
		}
		visited[i] = true

		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}

	return image.Rect(minX, minY, maxX+1, maxY+1)
}
