package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ivlev/pdf2lecture/internal/markup"
	"github.com/ivlev/pdf2lecture/internal/media"
	"github.com/ivlev/pdf2lecture/internal/player"
	"github.com/ivlev/pdf2lecture/internal/slideshow"
	"github.com/ivlev/pdf2lecture/internal/timeline"
	"github.com/ivlev/pdf2lecture/internal/transition"
)

// PlayOptions tune headless playback.
type PlayOptions struct {
	// Speed multiplies wall-clock time; 1 is real time.
	Speed float64
	// Tick is the simulated audio update interval.
	Tick     time.Duration
	Autoplay bool
	// Transcript prints every segment's text with highlighted paragraphs.
	Transcript bool
	// Seek starts slideshow playback at this fraction of the track.
	Seek float64
	// SkipToEnd jumps a slideshow to its last image instead of playing.
	SkipToEnd bool
}

// Play runs a timeline through the playback controller with a simulated
// audio element, feeding each new segment's visual to r (which may be nil).
// It returns the final state once the timeline has ended.
func Play(ctx context.Context, tl *timeline.Timeline, r *transition.Renderer, opt PlayOptions, logger *log.Logger) (player.PlaybackState, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opt.Speed <= 0 {
		opt.Speed = 1
	}
	if opt.Tick <= 0 {
		opt.Tick = 250 * time.Millisecond
	}

	audio := media.NewSimAudio(AudioDurations(tl))
	c := player.NewController(tl, audio)
	c.Logger = logger
	c.OnSegment = func(seg timeline.Segment) {
		logger.Printf("[>] Segment %d/%d [%d-%ds] %s", seg.Index+1, tl.Len(), seg.Start, seg.End, seg.Heading)
		if opt.Transcript && seg.Body != "" {
			fmt.Println(markup.HighlightMarkers(markup.Normalize(seg.Body), seg.Markers))
		}
		if r != nil {
			r.ShowRef(ctx, seg.Visual)
		}
	}

	if err := c.Mount(ctx, opt.Autoplay); err != nil {
		return c.Snapshot(), err
	}
	if !opt.Autoplay || c.State() == player.Paused {
		// Без пользователя некому нажать play: пробуем ещё раз.
		c.PlayPause(ctx)
	}
	if err := c.Err(); err != nil && c.State() != player.Playing {
		return c.Snapshot(), err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go tick(ctx, audio, opt)

	err := c.Run(ctx)
	return c.Snapshot(), err
}

// narrationRef names the simulated track of a slideshow without audio.
const narrationRef = "narration"

// PlaySlideshow plays images evenly over duration seconds, driven by a
// simulated narration element for audioRef. Image changes go to r (which may
// be nil) with the kind the slideshow picked. It returns the final state once
// the narration has ended.
func PlaySlideshow(ctx context.Context, images []string, audioRef string, duration float64, r *transition.Renderer, opt PlayOptions, logger *log.Logger) (slideshow.State, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opt.Speed <= 0 {
		opt.Speed = 1
	}
	if opt.Tick <= 0 {
		opt.Tick = 250 * time.Millisecond
	}
	if audioRef == "" {
		audioRef = narrationRef
	}

	show, err := slideshow.New(images, duration)
	if err != nil {
		return slideshow.State{}, err
	}
	show.OnChange = func(ch slideshow.Change) {
		logger.Printf("[>] Image %d/%d (%s) %s", ch.Index+1, show.Len(), ch.Kind, ch.Current)
		if r != nil {
			r.SetKind(ch.Kind)
			r.ShowRef(ctx, ch.Current)
		}
	}

	audio := media.NewSimAudio(map[string]float64{audioRef: show.Duration()})
	gen, err := audio.Load(ctx, audioRef)
	if err != nil {
		return show.Snapshot(), err
	}
	show.Attach(audio, gen)
	if r != nil {
		r.ShowRef(ctx, show.ImageAt(0))
	}

	if opt.SkipToEnd {
		show.SkipToEnd()
		return show.Snapshot(), nil
	}
	if opt.Seek > 0 {
		show.SeekFraction(opt.Seek)
	}
	if err := audio.Play(); err != nil {
		return show.Snapshot(), err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go tick(ctx, audio, opt)

	for {
		select {
		case <-ctx.Done():
			return show.Snapshot(), ctx.Err()
		case ev := <-audio.Events():
			if ev.Kind == media.Error {
				return show.Snapshot(), ev.Err
			}
			show.HandleEvent(ev)
			if st := show.Snapshot(); st.Ended {
				return st, nil
			}
		}
	}
}

// tick drives the simulated element at opt.Speed.
func tick(ctx context.Context, audio *media.SimAudio, opt PlayOptions) {
	ticker := time.NewTicker(opt.Tick)
	defer ticker.Stop()
	step := opt.Tick.Seconds() * opt.Speed
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			audio.Tick(step)
		}
	}
}

// AudioDurations maps every audio ref of tl to its narrated length.
func AudioDurations(tl *timeline.Timeline) map[string]float64 {
	d := make(map[string]float64, tl.Len())
	for _, s := range tl.Segments() {
		if s.AudioRef != "" {
			d[s.AudioRef] = s.Duration
		}
	}
	return d
}
