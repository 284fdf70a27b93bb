// Package slideshow spreads a narration track evenly across an image list.
package slideshow

import (
	"errors"
	"math"
	"sync"

	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/media"
	"github.com/ivlev/pdf2lecture/internal/transition"
)

var ErrNoImages = errors.New("slideshow has no images")

// Change describes one index change.
type Change struct {
	Index    int
	Prev     int
	Current  string
	Previous string
	Kind     transition.Kind
}

// Slideshow maps a position on the track to an image index. Every index
// change hands the old image to the transition as its outgoing visual and
// advances the transition kind through transition.Sequence.
type Slideshow struct {
	OnChange func(Change)

	mu       sync.Mutex
	images   []string
	duration float64
	per      float64
	t        float64
	index    int
	prev     int
	changes  int
	kind     transition.Kind
	ended    bool

	audio media.Audio
	gen   uint64
}

func New(images []string, duration float64) (*Slideshow, error) {
	if len(images) == 0 {
		return nil, apperr.Input("slideshow", ErrNoImages)
	}
	if duration < 0 || math.IsNaN(duration) {
		duration = 0
	}
	return &Slideshow{
		images:   append([]string(nil), images...),
		duration: duration,
		per:      duration / float64(max(1, len(images))),
		prev:     -1,
		kind:     transition.Cycle(0),
	}, nil
}

func (s *Slideshow) Len() int { return len(s.images) }
func (s *Slideshow) Duration() float64 { return s.duration }
func (s *Slideshow) PerImage() float64 { return s.per }
func (s *Slideshow) Images() []string { return append([]string(nil), s.images...) }
func (s *Slideshow) ImageAt(i int) string { return s.images[i] }

// IndexAt returns clamp(floor(t/per), 0, N-1).
func (s *Slideshow) IndexAt(t float64) int {
	last := len(s.images) - 1
	if s.per <= 0 {
		if t > 0 {
			return last
		}
		return 0
	}
	i := int(math.Floor(t / s.per))
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}

// Advance moves the position to t (clamped to the track).
func (s *Slideshow) Advance(t float64) {
	s.mu.Lock()
	ch, ok := s.moveTo(s.clamp(t), -1)
	s.mu.Unlock()
	s.notify(ch, ok)
}

// SeekFraction maps a scrub position p in [0, 1] to p·D.
func (s *Slideshow) SeekFraction(p float64) {
	if p < 0 || math.IsNaN(p) {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	s.mu.Lock()
	t := p * s.duration
	s.ended = false
	ch, ok := s.moveTo(t, -1)
	s.seekAudio(t)
	s.mu.Unlock()
	s.notify(ch, ok)
}

// SkipToEnd shows the last image at t = D.
func (s *Slideshow) SkipToEnd() {
	s.mu.Lock()
	ch, ok := s.moveTo(s.duration, len(s.images)-1)
	s.seekAudio(s.duration)
	s.ended = true
	s.mu.Unlock()
	s.notify(ch, ok)
}

// Attach drives the slideshow from a narration element: time updates move
// the position, the ended event marks the end.
func (s *Slideshow) Attach(audio media.Audio, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = audio
	s.gen = gen
}

// HandleEvent applies a narration event. Events from before the last seek
// are ignored.
func (s *Slideshow) HandleEvent(ev media.Event) {
	s.mu.Lock()
	if s.audio == nil || ev.Gen != s.gen {
		s.mu.Unlock()
		return
	}
	var (
		ch Change
		ok bool
	)
	switch ev.Kind {
	case media.TimeUpdate:
		ch, ok = s.moveTo(s.clamp(ev.Time), -1)
	case media.Ended:
		ch, ok = s.moveTo(s.duration, len(s.images)-1)
		s.ended = true
	}
	s.mu.Unlock()
	s.notify(ch, ok)
}

type State struct {
	Time     float64
	Index    int
	Prev     int
	Current  string
	Previous string
	Kind     transition.Kind
	Ended    bool
}

func (s *Slideshow) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Time:    s.t,
		Index:   s.index,
		Prev:    s.prev,
		Current: s.images[s.index],
		Kind:    s.kind,
		Ended:   s.ended,
	}
	if s.prev >= 0 {
		st.Previous = s.images[s.prev]
	}
	return st
}

func (s *Slideshow) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Slideshow) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

func (s *Slideshow) Kind() transition.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// moveTo sets the position and, when the index changes, records the change.
// force >= 0 pins the index instead of deriving it from t. Callers hold mu.
func (s *Slideshow) moveTo(t float64, force int) (Change, bool) {
	s.t = t
	idx := force
	if idx < 0 {
		idx = s.IndexAt(t)
	}
	if idx == s.index {
		return Change{}, false
	}
	s.prev, s.index = s.index, idx
	s.kind = transition.Cycle(s.changes)
	s.changes++
	return Change{
		Index:    idx,
		Prev:     s.prev,
		Current:  s.images[idx],
		Previous: s.images[s.prev],
		Kind:     s.kind,
	}, true
}

func (s *Slideshow) seekAudio(t float64) {
	if s.audio != nil {
		s.gen = s.audio.SetCurrentTime(t)
	}
}

func (s *Slideshow) clamp(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > s.duration {
		return s.duration
	}
	return t
}

func (s *Slideshow) notify(ch Change, ok bool) {
	if ok && s.OnChange != nil {
		s.OnChange(ch)
	}
}
