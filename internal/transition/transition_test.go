package transition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"testing"
	"time"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

func solid(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

func newTestRenderer() (*Renderer, *ManualClock) {
	clock := NewManualClock(time.Unix(0, 0))
	r := NewRenderer(64, 36, 800*time.Millisecond, clock)
	r.Logger = log.New(&bytes.Buffer{}, "", 0)
	return r, clock
}

func TestParseKindAndCycle(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"fade", Fade},
		{"Displacement", Displacement},
		{" noise ", Noise},
		{"dissolve", Noise},
	}
	for _, tt := range tests {
		if got, err := ParseKind(tt.in); err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ParseKind("wipe"); err == nil {
		t.Error("unknown kind accepted")
	}

	want := []Kind{Fade, Displacement, Noise, Fade, Displacement}
	for i, k := range want {
		if Cycle(i) != k {
			t.Errorf("Cycle(%d) = %v, want %v", i, Cycle(i), k)
		}
	}
	if Noise.Next() != Fade {
		t.Error("sequence must wrap around")
	}
}

func TestProgressMonotonicAndResets(t *testing.T) {
	r, clock := newTestRenderer()
	defer r.Close()
	ctx := context.Background()

	r.Show(solid(red))
	if r.Progress() != 1 || r.Transitioning() {
		t.Fatal("first visual must not animate")
	}

	r.Show(solid(blue))
	last := -1.0
	for i := 0; i < 6; i++ {
		p := r.Progress()
		if p < last {
			t.Fatalf("progress went backwards: %v -> %v", last, p)
		}
		last = p
		if _, err := r.Frame(ctx); err != nil {
			t.Fatal(err)
		}
		clock.Advance(100 * time.Millisecond)
	}
	if last <= 0 || last >= 1 {
		t.Fatalf("progress after 500ms = %v", last)
	}

	r.Show(solid(red))
	if p := r.Progress(); p != 0 {
		t.Errorf("new transition must restart at 0, got %v", p)
	}
}

func TestCommitAtEnd(t *testing.T) {
	for _, k := range Sequence {
		t.Run(string(k), func(t *testing.T) {
			r, clock := newTestRenderer()
			defer r.Close()
			r.SetKind(k)
			ctx := context.Background()

			r.Show(solid(red))
			r.Show(solid(blue))
			clock.Advance(400 * time.Millisecond)
			if _, err := r.Frame(ctx); err != nil {
				t.Fatal(err)
			}
			if !r.Transitioning() {
				t.Fatal("transition committed early")
			}

			clock.Advance(time.Second)
			frame, err := r.Frame(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if r.Transitioning() {
				t.Error("transition not committed at progress 1")
			}
			// Center pixel shows the incoming visual once committed.
			o := frame.PixOffset(32, 18)
			if frame.Pix[o] != 0 || frame.Pix[o+2] != 0xff {
				t.Errorf("center pixel = %v, want blue", frame.Pix[o:o+4])
			}
		})
	}
}

func TestFadeMidpointBlends(t *testing.T) {
	r, clock := newTestRenderer()
	defer r.Close()
	r.Show(solid(red))
	r.Show(solid(blue))
	clock.Advance(400 * time.Millisecond)

	frame, err := r.Frame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	o := frame.PixOffset(32, 18)
	if rc, bc := frame.Pix[o], frame.Pix[o+2]; rc < 0x60 || rc > 0xa0 || bc < 0x60 || bc > 0xa0 {
		t.Errorf("midpoint pixel = %v, want a half blend", frame.Pix[o:o+4])
	}
}

type failingLoader struct{}

func (failingLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	return nil, errors.New("404")
}

func TestShowRefPlaceholder(t *testing.T) {
	r, _ := newTestRenderer()
	defer r.Close()
	r.Loader = failingLoader{}

	err := r.ShowRef(context.Background(), "https://example.com/missing.png")
	if !apperr.IsRecoverable(err) {
		t.Errorf("got %v, want MediaError", err)
	}
	frame, ferr := r.Frame(context.Background())
	if ferr != nil || frame == nil {
		t.Fatalf("placeholder not rendered: %v", ferr)
	}
	if frame.Pix[3] != 0xff {
		t.Error("placeholder frame is empty")
	}
}

func TestCompileRejectsBadViewport(t *testing.T) {
	_, err := Compile(Fade, 0, 10)
	var re *apperr.RenderError
	if !errors.As(err, &re) {
		t.Errorf("got %v, want RenderError", err)
	}
}

func TestRenderErrorFallsBackToHardCut(t *testing.T) {
	r := NewRenderer(0, 0, time.Second, NewManualClock(time.Unix(0, 0)))
	r.Logger = log.New(&bytes.Buffer{}, "", 0)
	defer r.Close()

	r.Show(solid(red))
	r.Show(solid(blue))
	if _, err := r.Frame(context.Background()); err != nil {
		t.Fatalf("render failure must not surface: %v", err)
	}
	if !r.HardCuts() || r.Transitioning() {
		t.Error("renderer should disable transitions after a render error")
	}
}
