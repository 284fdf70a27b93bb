// Package transition animates between visuals with per-pixel blend programs,
// rendered in software on an independent clock.
package transition

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/system"
)

const DefaultDuration = 800 * time.Millisecond

// Loader resolves a visual reference to an image.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Renderer holds the current visual, the outgoing one while a transition is
// running, and the compiled program for the active kind.
//
// A new visual arriving mid-transition replaces the running transition: the
// outgoing texture is dropped and the visual that was fading in becomes the
// new outgoing one.
type Renderer struct {
	Loader Loader
	Logger *log.Logger

	mu       sync.Mutex
	w, h     int
	duration time.Duration
	clock    Clock
	kind     Kind
	program  *Program
	current  *Texture
	previous *Texture
	started  time.Time
	frame    *image.RGBA
	dirty    bool
	hardCut  bool
	closed   bool
}

func NewRenderer(w, h int, duration time.Duration, clock Clock) *Renderer {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Renderer{w: w, h: h, duration: duration, clock: clock, kind: Fade, dirty: true}
}

func (r *Renderer) Size() (int, int) { return r.w, r.h }

// Show makes img the current visual. If there was one already, a transition
// from it starts now.
func (r *Renderer) Show(img image.Image) {
	tex := NewTexture(img, r.w, r.h)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		tex.Release()
		return
	}
	if r.previous != nil {
		r.previous.Release()
		r.previous = nil
	}
	if r.current != nil && !r.hardCut {
		r.previous = r.current
		r.started = r.clock.Now()
	} else if r.current != nil {
		r.current.Release()
	}
	r.current = tex
	r.dirty = true
}

// ShowRef loads ref and shows it. On failure a placeholder is shown instead
// and the MediaError is returned for logging.
func (r *Renderer) ShowRef(ctx context.Context, ref string) error {
	var (
		img image.Image
		err error
	)
	if r.Loader == nil {
		err = errors.New("no loader configured")
	} else {
		img, err = r.Loader.Load(ctx, ref)
	}
	if err != nil {
		var me *apperr.MediaError
		if !errors.As(err, &me) {
			err = apperr.Media("load visual", ref, err)
		}
		r.logger().Printf("[!] transition: %v, showing placeholder", err)
		img = Placeholder(ref, r.w, r.h)
	}
	r.Show(img)
	return err
}

// SetKind switches the blend program. The old program is released; the new
// one is compiled on the next frame that needs it.
func (r *Renderer) SetKind(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k == r.kind {
		return
	}
	r.kind = k
	if r.program != nil {
		r.program.Release()
		r.program = nil
	}
}

func (r *Renderer) Kind() Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kind
}

// Progress of the running transition in [0, 1]; 1 when idle.
func (r *Renderer) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress()
}

func (r *Renderer) progress() float64 {
	if r.previous == nil {
		return 1
	}
	p := float64(r.clock.Now().Sub(r.started)) / float64(r.duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Transitioning reports whether an outgoing visual is still on screen.
func (r *Renderer) Transitioning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous != nil
}

// HardCuts reports whether transitions were disabled after a render error.
func (r *Renderer) HardCuts() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hardCut
}

// Frame renders the current frame. The returned image is owned by the
// renderer and stays valid until the next call. Once progress reaches 1 the
// transition commits and later frames are static.
func (r *Renderer) Frame(ctx context.Context) (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, apperr.Render("frame", errors.New("renderer closed"))
	}
	if r.frame == nil {
		r.frame = system.GetImage(image.Rect(0, 0, r.w, r.h))
		r.dirty = true
	}

	if r.previous != nil {
		p := r.progress()
		if p >= 1 {
			r.commit()
		} else if err := r.draw(ctx, p); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger().Printf("[!] transition: %v, falling back to hard cuts", err)
			r.hardCut = true
			r.commit()
		} else {
			return r.frame, nil
		}
	}

	if r.dirty {
		if r.current != nil {
			copy(r.frame.Pix, r.current.img.Pix)
		} else {
			clear(r.frame.Pix)
		}
		r.dirty = false
	}
	return r.frame, nil
}

func (r *Renderer) draw(ctx context.Context, p float64) error {
	if r.program == nil {
		prog, err := Compile(r.kind, r.w, r.h)
		if err != nil {
			return err
		}
		r.program = prog
	}
	r.dirty = true
	return r.program.Draw(ctx, r.frame, r.previous, r.current, p)
}

func (r *Renderer) commit() {
	r.previous.Release()
	r.previous = nil
	r.dirty = true
}

// Run renders at fps until ctx is done, handing every frame to sink.
func (r *Renderer) Run(ctx context.Context, fps int, sink func(*image.RGBA) error) error {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := r.Frame(ctx)
			if err != nil {
				return err
			}
			if err := sink(frame); err != nil {
				return err
			}
		}
	}
}

// Close releases every texture and the program.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.program != nil {
		r.program.Release()
		r.program = nil
	}
	r.current.Release()
	r.previous.Release()
	r.current, r.previous = nil, nil
	if r.frame != nil {
		system.PutImage(r.frame)
		r.frame = nil
	}
}

func (r *Renderer) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}
