package transition

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ivlev/pdf2lecture/internal/system"
)

// Texture is a visual uploaded at viewport size. Pixels live in a pooled
// RGBA buffer that goes back to the pool on Release.
type Texture struct {
	img *image.RGBA
	w   int
	h   int
}

var background = image.NewUniform(color.RGBA{A: 0xff})

// NewTexture letterboxes src into a w×h texture, keeping its aspect ratio.
func NewTexture(src image.Image, w, h int) *Texture {
	dst := system.GetImage(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, background, image.Point{}, draw.Src)

	if src != nil {
		sb := src.Bounds()
		if sb.Dx() > 0 && sb.Dy() > 0 {
			draw.CatmullRom.Scale(dst, fit(sb, w, h), src, sb, draw.Over, nil)
		}
	}
	return &Texture{img: dst, w: w, h: h}
}

// fit returns the largest rectangle with src's aspect ratio centered in a
// w×h viewport.
func fit(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	scale := float64(w) / sw
	if s := float64(h) / sh; s < scale {
		scale = s
	}
	dw, dh := int(sw*scale+0.5), int(sh*scale+0.5)
	x0, y0 := (w-dw)/2, (h-dh)/2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}

func (t *Texture) Image() *image.RGBA { return t.img }

// offset returns the Pix offset of the texel nearest to (x, y), clamped to
// the edges.
func (t *Texture) offset(x, y int) int {
	if x < 0 {
		x = 0
	} else if x >= t.w {
		x = t.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= t.h {
		y = t.h - 1
	}
	return y*t.img.Stride + x*4
}

func (t *Texture) Release() {
	if t == nil || t.img == nil {
		return
	}
	system.PutImage(t.img)
	t.img = nil
}
