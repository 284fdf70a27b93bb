package transition

import (
	"image"
	"image/color"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

var placeholderGray = image.NewUniform(color.RGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff})

// Placeholder is shown in place of a visual that failed to load: a gray
// card with a QR code of the missing reference so it can be traced from a
// screenshot or an exported frame.
func Placeholder(ref string, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, placeholderGray, image.Point{}, draw.Src)

	side := min(w, h) / 3
	if side < 21 || ref == "" {
		return img
	}
	q, err := qrcode.New(ref, qrcode.Low)
	if err != nil {
		return img
	}
	code := q.Image(side)
	at := image.Pt((w-side)/2, (h-side)/2)
	draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(code.Bounds().Size())}, code, code.Bounds().Min, draw.Src)
	return img
}
