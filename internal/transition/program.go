package transition

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

// shader computes one output pixel into out (4 bytes, RGBA).
type shader func(p *Program, x, y int, progress float64, from, to *Texture, out []uint8)

// Program is a compiled blend for one viewport size. Programs own their
// lookup textures and must be released when the kind changes.
type Program struct {
	kind    Kind
	w, h    int
	shade   shader
	dispMap *image.Gray
	// Strength of the displacement push, as a fraction of the width.
	Strength float64
	// Amplitude of the fade warp in pixels.
	Amplitude float64
}

// Compile builds the program for kind at w×h.
func Compile(kind Kind, w, h int) (*Program, error) {
	if w <= 0 || h <= 0 {
		return nil, apperr.Render("compile "+string(kind), fmt.Errorf("invalid viewport %dx%d", w, h))
	}
	p := &Program{kind: kind, w: w, h: h, Strength: 0.25, Amplitude: float64(w) / 60}
	switch kind {
	case Fade:
		p.shade = shadeFade
	case Displacement:
		p.shade = shadeDisplacement
		p.dispMap = displacementMap(w, h)
	case Noise:
		p.shade = shadeNoise
	default:
		return nil, apperr.Render("compile", fmt.Errorf("unknown transition %q", kind))
	}
	return p, nil
}

func (p *Program) Kind() Kind { return p.kind }

// Draw shades every pixel of dst in parallel row bands.
func (p *Program) Draw(ctx context.Context, dst *image.RGBA, from, to *Texture, progress float64) error {
	if p.shade == nil {
		return apperr.Render("draw", fmt.Errorf("program %s released", p.kind))
	}
	if from == nil || to == nil || from.img == nil || to.img == nil {
		return apperr.Render("draw", fmt.Errorf("missing texture"))
	}
	if dst.Rect.Dx() != p.w || dst.Rect.Dy() != p.h || from.w != p.w || to.w != p.w {
		return apperr.Render("draw", fmt.Errorf("size mismatch with %dx%d program", p.w, p.h))
	}

	workers := runtime.NumCPU()
	band := (p.h + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for y0 := 0; y0 < p.h; y0 += band {
		y1 := min(y0+band, p.h)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := dst.Pix[y*dst.Stride:]
				for x := 0; x < p.w; x++ {
					p.shade(p, x, y, progress, from, to, row[x*4:x*4+4])
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Release drops the program's lookup textures.
func (p *Program) Release() {
	p.shade = nil
	p.dispMap = nil
}

// shadeFade crossfades while warping both images along a smooth field, the
// outgoing one forward and the incoming one backward. The warp of each side
// vanishes where that side is fully visible.
func shadeFade(p *Program, x, y int, progress float64, from, to *Texture, out []uint8) {
	fx, fy := float64(x), float64(y)
	dx := p.Amplitude * math.Sin(fy*0.031+fx*0.017)
	dy := p.Amplitude * math.Cos(fx*0.027-fy*0.013)

	a := from.offset(int(fx+dx*progress), int(fy+dy*progress))
	b := to.offset(int(fx-dx*(1-progress)), int(fy-dy*(1-progress)))
	blend(out, from.img.Pix[a:a+4], to.img.Pix[b:b+4], progress)
}

// shadeDisplacement pushes the outgoing image by the map value scaled by
// progress and pulls the incoming one in from the opposite side.
func shadeDisplacement(p *Program, x, y int, progress float64, from, to *Texture, out []uint8) {
	d := float64(p.dispMap.Pix[y*p.dispMap.Stride+x]) / 255
	shift := d * p.Strength * float64(p.w)

	a := from.offset(x+int(shift*progress), y)
	b := to.offset(x-int(shift*(1-progress)), y)
	blend(out, from.img.Pix[a:a+4], to.img.Pix[b:b+4], progress)
}

// shadeNoise reveals the incoming pixel once its threshold exceeds
// 1-progress.
func shadeNoise(_ *Program, x, y int, progress float64, from, to *Texture, out []uint8) {
	src := from
	if hash2(x, y) > 1-progress {
		src = to
	}
	o := src.offset(x, y)
	copy(out, src.img.Pix[o:o+4])
}

func blend(out, a, b []uint8, t float64) {
	for i := 0; i < 4; i++ {
		out[i] = uint8(lerp(float64(a[i]), float64(b[i]), t) + 0.5)
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// hash2 maps a pixel to a stable pseudo-random value in [0, 1).
func hash2(x, y int) float64 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float64(h) / (1 << 32)
}

// displacementMap renders a smooth grayscale field from bilinearly
// interpolated lattice noise.
func displacementMap(w, h int) *image.Gray {
	const cell = 64
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		gy := float64(y) / cell
		y0 := int(gy)
		ty := smoothstep(gy - float64(y0))
		for x := 0; x < w; x++ {
			gx := float64(x) / cell
			x0 := int(gx)
			tx := smoothstep(gx - float64(x0))

			top := lerp(hash2(x0, y0), hash2(x0+1, y0), tx)
			bottom := lerp(hash2(x0, y0+1), hash2(x0+1, y0+1), tx)
			m.Pix[y*m.Stride+x] = uint8(lerp(top, bottom, ty) * 255)
		}
	}
	return m
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}
