// Package player drives one audio element across a segment timeline.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/media"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Paused
	Ended
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PlaybackState is a consistent view of the controller for rendering.
type PlaybackState struct {
	State   State
	Index   int
	Segment timeline.Segment
	Slider  float64
	Total   int
	Err     error
}

// Controller plays a timeline through one audio element. Playing and Paused
// are never stored: they are read from the element, so a rejected play can
// not leave the controller believing it is playing.
//
// Audio events carry the element generation; only events from the
// generation the controller itself last started are acted on. Any seek or
// source swap therefore invalidates a pending auto-advance.
type Controller struct {
	// OnSegment is called, outside the controller lock, each time a new
	// segment becomes current.
	OnSegment func(timeline.Segment)
	Logger    *log.Logger

	mu      sync.Mutex
	audio   media.Audio
	cursor  *timeline.Cursor
	phase   State // Idle, Loading, Ready, Ended, Error or Playing once started
	started bool
	gen     uint64
	slider  float64
	err     error
	ended   chan struct{}
	pending []timeline.Segment
}

func NewController(tl *timeline.Timeline, audio media.Audio) *Controller {
	return &Controller{
		audio:  audio,
		cursor: timeline.NewCursor(tl),
		phase:  Idle,
		ended:  make(chan struct{}),
	}
}

// Mount binds the audio element to the head segment. Segments whose audio
// fails to load are skipped. Mounting again after Error or Ended starts over. If autoplay is set, playback starts right away;
// a rejected autoplay leaves the controller paused with Err set.
func (c *Controller) Mount(ctx context.Context, autoplay bool) error {
	c.mu.Lock()
	if c.stopped() {
		c.ended = make(chan struct{})
	}
	c.err = nil
	c.cursor.Reset()
	c.phase = Loading
	ok := c.switchTo(ctx, c.cursor.Current(), 0, false)
	if !ok {
		c.phase = Error
		c.stop()
		err := c.err
		c.flush()
		if err == nil {
			err = ctx.Err()
		}
		return err
	}
	c.phase = Ready
	if autoplay {
		c.play()
	}
	c.flush()
	return nil
}

// HandleEvent applies one audio notification. Stale events are ignored.
func (c *Controller) HandleEvent(ctx context.Context, ev media.Event) {
	c.mu.Lock()
	defer c.flush()

	if ev.Gen != c.gen || !c.active() {
		return
	}
	seg := c.cursor.Current()
	switch ev.Kind {
	case media.TimeUpdate:
		abs := ev.Time + float64(seg.Start)
		c.slider = abs
		if abs > float64(seg.End) {
			c.advance(ctx, false)
		}
	case media.Ended:
		c.slider = float64(seg.Start) + ev.Time
		c.advance(ctx, false)
	case media.Error:
		err := ev.Err
		if err == nil {
			err = fmt.Errorf("playback failed")
		}
		c.fail(apperr.Media("play", seg.AudioRef, err))
		c.advance(ctx, true)
	}
}

// Run pumps audio events into the controller until the timeline ends or ctx
// is done. It returns the media error when playback stopped in Error.
func (c *Controller) Run(ctx context.Context) error {
	events := c.audio.Events()
	ended := c.Ended()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ended:
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.phase == Error {
				return c.err
			}
			return nil
		case ev := <-events:
			c.HandleEvent(ctx, ev)
		}
	}
}

// Seek jumps to absolute time v, clamped to the timeline. Inside the
// current segment only the audio position moves and playback resumes if it
// was running or the timeline had ended. Otherwise the segment is resolved,
// its audio loaded and played from the matching offset.
func (c *Controller) Seek(ctx context.Context, v float64) {
	c.mu.Lock()
	defer c.flush()
	if c.phase == Idle || c.phase == Error {
		return
	}

	total := float64(c.cursor.Timeline().Total())
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	if v > total {
		v = total
	}

	resume := !c.audio.Paused() || c.phase == Ended
	cur := c.cursor.Current()
	c.slider = v
	if c.phase == Ended {
		c.phase = Paused
	}

	if v >= float64(cur.Start) && v <= float64(cur.End) && c.audio.Source() == cur.AudioRef {
		c.gen = c.audio.SetCurrentTime(v - float64(cur.Start))
		if resume && c.audio.Paused() {
			c.play()
		}
		return
	}

	seg := c.cursor.Seek(int(math.Floor(v)))
	if !c.switchTo(ctx, seg, v-float64(seg.Start), true) {
		c.exhausted(ctx)
	}
}

// PlayPause toggles playback. After the timeline ended it starts over.
func (c *Controller) PlayPause(ctx context.Context) {
	c.mu.Lock()
	switch {
	case c.phase == Idle || c.phase == Error:
		c.flush()
		return
	case c.phase == Ended:
		c.flush()
		c.Seek(ctx, 0)
		return
	}
	if c.audio.Paused() {
		c.play()
	} else {
		c.audio.Pause()
	}
	c.flush()
}

// Restart rewinds the current segment's audio and resumes it.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.flush()
	if !c.active() {
		return
	}
	c.gen = c.audio.SetCurrentTime(0)
	c.slider = float64(c.cursor.Current().Start)
	c.play()
}

// NextSegment moves to the following segment and plays it. At the tail it
// reports false and the controller is Ended.
func (c *Controller) NextSegment(ctx context.Context) bool {
	c.mu.Lock()
	defer c.flush()
	if !c.active() {
		return false
	}
	return c.advance(ctx, false)
}

// PrevSegment moves to the preceding segment and plays it. At the head it
// is a no-op returning false.
func (c *Controller) PrevSegment(ctx context.Context) bool {
	c.mu.Lock()
	defer c.flush()
	if !c.active() && c.phase != Ended {
		return false
	}
	seg, ok := c.cursor.Prev()
	if !ok {
		return false
	}
	if c.phase == Ended {
		c.phase = Paused
	}
	c.slider = float64(seg.Start)
	if !c.switchTo(ctx, seg, 0, true) {
		c.exhausted(ctx)
	}
	return true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) Snapshot() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PlaybackState{
		State:   c.state(),
		Index:   c.cursor.Position(),
		Segment: c.cursor.Current(),
		Slider:  c.slider,
		Total:   c.cursor.Timeline().Total(),
		Err:     c.err,
	}
}

// Ended is closed when playback stops for good: the timeline ran out, or no
// segment left can be played (State is then Error).
func (c *Controller) Ended() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Err returns the last error meant for the user, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// state derives the public state. Callers hold mu.
func (c *Controller) state() State {
	switch c.phase {
	case Idle, Loading, Ended, Error:
		return c.phase
	}
	if !c.audio.Paused() {
		return Playing
	}
	if !c.started {
		return Ready
	}
	return Paused
}

func (c *Controller) active() bool {
	switch c.phase {
	case Ready, Playing, Paused:
		return true
	}
	return false
}

// advance follows the next link. failed says the current segment broke;
// together with a failed load on the way it turns running out into Error.
// Callers hold mu.
func (c *Controller) advance(ctx context.Context, failed bool) bool {
	for {
		seg, ok := c.cursor.Next()
		if !ok {
			if failed {
				c.stall()
			} else {
				c.finish()
			}
			return false
		}
		c.slider = float64(seg.Start)
		if c.load(ctx, seg, 0) {
			c.play()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		failed = true
	}
}

// switchTo loads seg and, on failure, keeps walking forward until some
// segment loads. Callers hold mu.
func (c *Controller) switchTo(ctx context.Context, seg timeline.Segment, offset float64, play bool) bool {
	if c.load(ctx, seg, offset) {
		if play {
			c.play()
		}
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	for {
		next, ok := c.cursor.Next()
		if !ok {
			return false
		}
		if c.load(ctx, next, 0) {
			c.slider = float64(next.Start)
			if play {
				c.play()
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}

func (c *Controller) load(ctx context.Context, seg timeline.Segment, offset float64) bool {
	gen, err := c.audio.Load(ctx, seg.AudioRef)
	c.gen = gen
	if err != nil {
		if ctx.Err() == nil {
			var me *apperr.MediaError
			if !errors.As(err, &me) {
				err = apperr.Media("load", seg.AudioRef, err)
			}
			c.fail(err)
			c.logger().Printf("[!] player: segment %d audio %q unavailable, skipping: %v", seg.Index, seg.AudioRef, err)
		}
		return false
	}
	if offset > 0 {
		c.gen = c.audio.SetCurrentTime(offset)
	}
	c.pending = append(c.pending, seg)
	return true
}

func (c *Controller) play() {
	c.started = true
	if c.phase == Ready {
		c.phase = Playing
	}
	if err := c.audio.Play(); err != nil {
		c.fail(err)
		c.logger().Printf("[!] player: play rejected: %v", err)
	}
}

func (c *Controller) fail(err error) {
	c.err = err
}

func (c *Controller) finish() {
	c.phase = Ended
	c.slider = float64(c.cursor.Timeline().Total())
	c.stop()
}

// stall enters Error: a media failure left nothing playable. Err keeps the
// failure and a new Mount retries.
func (c *Controller) stall() {
	c.phase = Error
	c.audio.Pause()
	c.logger().Printf("[-] player: no playable segment left: %v", c.err)
	c.stop()
}

// exhausted handles a switch that found nothing to load.
func (c *Controller) exhausted(ctx context.Context) {
	if ctx.Err() != nil {
		c.finish()
		return
	}
	c.stall()
}

func (c *Controller) stop() {
	if !c.stopped() {
		close(c.ended)
	}
}

func (c *Controller) stopped() bool {
	select {
	case <-c.ended:
		return true
	default:
		return false
	}
}

// flush releases mu and then reports segment changes queued while it was
// held.
func (c *Controller) flush() {
	segs := c.pending
	c.pending = nil
	hook := c.OnSegment
	c.mu.Unlock()
	if hook == nil {
		return
	}
	for _, s := range segs {
		hook(s)
	}
}

func (c *Controller) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}
