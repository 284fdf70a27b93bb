package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"time"

	"github.com/ivlev/pdf2lecture/internal/slideshow"
	"github.com/ivlev/pdf2lecture/internal/system"
	"github.com/ivlev/pdf2lecture/internal/timeline"
	"github.com/ivlev/pdf2lecture/internal/transition"
	"github.com/ivlev/pdf2lecture/internal/video"
)

// Exporter renders a timeline or a slideshow to a video file. Frames are
// produced by the transition renderer on a manual clock that advances one
// frame interval per frame, so transitions last the same in the file as on
// screen.
type Exporter struct {
	Encoder            video.Encoder
	Loader             transition.Loader
	Params             video.Params
	TransitionDuration time.Duration
	Transition         transition.Kind
	Logger             *log.Logger
}

// Report summarizes one export.
type Report struct {
	Input    string
	Output   string
	Frames   int
	Segments int
	Duration float64
	Elapsed  time.Duration
	Visuals  int
	Missing  int
	System   system.Snapshot
}

// ExportTimeline renders tl with each segment's audio placed at its start.
func (e *Exporter) ExportTimeline(ctx context.Context, tl *timeline.Timeline, out string) (Report, error) {
	started := time.Now()
	r, clock := e.renderer()
	defer r.Close()

	src := &timelineFrames{
		cursor: timeline.NewCursor(tl),
		r:      r,
		clock:  clock,
		fps:    e.fps(),
		frames: FrameCount(TimelineDuration(tl), e.fps()),
		last:   -1,
	}

	var audio []video.AudioTrack
	for _, s := range tl.Segments() {
		if s.AudioRef != "" {
			audio = append(audio, video.AudioTrack{Path: s.AudioRef, Offset: float64(s.Start)})
		}
	}

	p := e.Params
	p.FPS = e.fps()
	p.Duration = TimelineDuration(tl)
	if err := e.Encoder.Encode(ctx, src, out, audio, p); err != nil {
		return Report{}, err
	}
	return Report{
		Output:   out,
		Frames:   src.frame,
		Segments: tl.Len(),
		Duration: p.Duration,
		Elapsed:  time.Since(started),
		Visuals:  src.shown,
		Missing:  src.missing,
		System:   system.Stats(),
	}, nil
}

// ExportSlideshow renders images evenly over duration seconds, with an
// optional single narration track.
func (e *Exporter) ExportSlideshow(ctx context.Context, images []string, audioPath string, duration float64, out string) (Report, error) {
	started := time.Now()
	show, err := slideshow.New(images, duration)
	if err != nil {
		return Report{}, err
	}
	r, clock := e.renderer()
	defer r.Close()

	src := &slideshowFrames{
		show:   show,
		r:      r,
		clock:  clock,
		fps:    e.fps(),
		frames: FrameCount(duration, e.fps()),
	}
	show.OnChange = func(ch slideshow.Change) {
		r.SetKind(ch.Kind)
		src.showRef(ctx, r, ch.Current)
	}

	var audio []video.AudioTrack
	if audioPath != "" {
		audio = append(audio, video.AudioTrack{Path: audioPath})
	}
	p := e.Params
	p.FPS = e.fps()
	p.Duration = duration
	if err := e.Encoder.Encode(ctx, src, out, audio, p); err != nil {
		return Report{}, err
	}
	return Report{
		Output:   out,
		Frames:   src.frame,
		Segments: show.Len(),
		Duration: duration,
		Elapsed:  time.Since(started),
		Visuals:  src.shown,
		Missing:  src.missing,
		System:   system.Stats(),
	}, nil
}

func (e *Exporter) renderer() (*transition.Renderer, *transition.ManualClock) {
	clock := transition.NewManualClock(time.Unix(0, 0))
	r := transition.NewRenderer(e.Params.Width, e.Params.Height, e.TransitionDuration, clock)
	r.Loader = e.Loader
	r.Logger = e.Logger
	if e.Transition != "" {
		r.SetKind(e.Transition)
	}
	return r, clock
}

func (e *Exporter) fps() int {
	if e.Params.FPS <= 0 {
		return 30
	}
	return e.Params.FPS
}

// TimelineDuration is the playable length of tl in seconds: the tail's start
// plus its narration.
func TimelineDuration(tl *timeline.Timeline) float64 {
	tail := tl.Tail()
	return math.Max(float64(tail.Start)+tail.Duration, float64(tl.Total()))
}

// FrameCount returns the number of frames for duration seconds, at least 1.
func FrameCount(duration float64, fps int) int {
	if fps <= 0 {
		fps = 30
	}
	n := int(math.Ceil(duration * float64(fps)))
	return max(1, n)
}

type frameCounter struct {
	frame   int
	shown   int
	missing int
}

func (f *frameCounter) showRef(ctx context.Context, r *transition.Renderer, ref string) {
	f.shown++
	if err := r.ShowRef(ctx, ref); err != nil {
		f.missing++
	}
}

// timelineFrames walks the timeline at the frame rate, switching visuals as
// segments change.
type timelineFrames struct {
	frameCounter
	cursor *timeline.Cursor
	r      *transition.Renderer
	clock  *transition.ManualClock
	fps    int
	frames int
	last   int
	visual string
}

func (f *timelineFrames) NextFrame(ctx context.Context) (*image.RGBA, error) {
	if f.frame >= f.frames {
		return nil, io.EOF
	}
	t := float64(f.frame) / float64(f.fps)
	seg := f.cursor.Seek(int(math.Floor(t)))
	if seg.Index != f.last {
		f.last = seg.Index
		// Соседние части одного региона делят картинку: перехода нет.
		if seg.Visual != f.visual {
			f.visual = seg.Visual
			f.showRef(ctx, f.r, seg.Visual)
		}
	}
	img, err := f.r.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("render frame %d: %w", f.frame, err)
	}
	f.frame++
	f.clock.Advance(time.Second / time.Duration(f.fps))
	return img, nil
}

// slideshowFrames advances a slideshow at the frame rate.
type slideshowFrames struct {
	frameCounter
	show   *slideshow.Slideshow
	r      *transition.Renderer
	clock  *transition.ManualClock
	fps    int
	frames int
}

func (f *slideshowFrames) NextFrame(ctx context.Context) (*image.RGBA, error) {
	if f.frame >= f.frames {
		return nil, io.EOF
	}
	if f.frame == 0 {
		f.showRef(ctx, f.r, f.show.ImageAt(0))
	}
	f.show.Advance(float64(f.frame) / float64(f.fps))
	img, err := f.r.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("render frame %d: %w", f.frame, err)
	}
	f.frame++
	f.clock.Advance(time.Second / time.Duration(f.fps))
	return img, nil
}
