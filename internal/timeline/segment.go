// Package timeline holds the variable-duration segment chain: an arena of
// contiguous closed integer intervals plus cursors that map playback time to
// the owning segment.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// None marks a missing Prev/Next link.
const None = -1

var (
	ErrEmpty      = errors.New("timeline has no segments")
	ErrNotLinked  = errors.New("segments are not contiguous")
	ErrBadSegment = errors.New("segment ends before it starts")
)

// Segment is one time-addressable content unit. Start and End are whole
// seconds and both inclusive. Prev and Next are arena indices (None at the
// ends of the chain).
type Segment struct {
	Index      int      `json:"index" yaml:"index"`
	Start      int      `json:"start" yaml:"start"`
	End        int      `json:"end" yaml:"end"`
	Visual     string   `json:"visual" yaml:"visual"`
	Original   bool     `json:"original_visual" yaml:"original_visual"`
	AudioRef   string   `json:"audio_ref" yaml:"audio_ref"`
	Heading    string   `json:"heading" yaml:"heading"`
	Body       string   `json:"body" yaml:"body"`
	Summary    string   `json:"summary" yaml:"summary"`
	PageImage  string   `json:"page_image" yaml:"page_image"`
	Duration   float64  `json:"duration" yaml:"duration"`
	Transcript string   `json:"transcript" yaml:"transcript"`
	Markers    []string `json:"markers,omitempty" yaml:"markers,omitempty"`
	Prev       int      `json:"prev" yaml:"prev"`
	Next       int      `json:"next" yaml:"next"`
}

// Contains reports whether the whole second v lies inside the segment.
func (s Segment) Contains(v int) bool {
	return v >= s.Start && v <= s.End
}

// Length is the number of whole seconds the segment covers.
func (s Segment) Length() int {
	return s.End - s.Start + 1
}

func (s Segment) clone() Segment {
	s.Markers = slices.Clone(s.Markers)
	return s
}

// Builder appends segments to the tail of a chain, deriving each time range
// from the running tail: start = tail.End + 1, end = ceil(start + duration).
type Builder struct {
	segs []Segment
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Append links s as the new tail and returns it with its range filled in.
func (b *Builder) Append(s Segment, duration float64) Segment {
	tailEnd := -1
	prev := None
	if n := len(b.segs); n > 0 {
		tailEnd = b.segs[n-1].End
		prev = n - 1
	}
	if duration < 0 || math.IsNaN(duration) {
		duration = 0
	}

	s.Index = len(b.segs)
	s.Start = tailEnd + 1
	s.End = int(math.Ceil(float64(s.Start) + duration))
	s.Duration = duration
	s.Prev = prev
	s.Next = None
	s.Markers = slices.Clone(s.Markers)

	if prev != None {
		b.segs[prev].Next = s.Index
	}
	b.segs = append(b.segs, s)
	return s.clone()
}

// Len returns the number of appended segments.
func (b *Builder) Len() int {
	return len(b.segs)
}

// Build freezes the chain. The builder must not be reused afterwards.
func (b *Builder) Build() (*Timeline, error) {
	if len(b.segs) == 0 {
		return nil, ErrEmpty
	}
	tl := newTimeline(b.segs)
	b.segs = nil
	return tl, nil
}

// FromSegments rebuilds a timeline from precomputed segments, for example a
// chain that was serialized earlier. Links are recomputed from order; ranges
// must already be contiguous.
func FromSegments(segs []Segment) (*Timeline, error) {
	if len(segs) == 0 {
		return nil, ErrEmpty
	}
	out := make([]Segment, len(segs))
	for i, s := range segs {
		if s.End < s.Start {
			return nil, fmt.Errorf("segment %d [%d,%d]: %w", i, s.Start, s.End, ErrBadSegment)
		}
		if i > 0 && s.Start != out[i-1].End+1 {
			return nil, fmt.Errorf("segment %d starts at %d after end %d: %w", i, s.Start, out[i-1].End, ErrNotLinked)
		}
		s = s.clone()
		s.Index = i
		s.Prev = i - 1
		s.Next = i + 1
		if i == len(segs)-1 {
			s.Next = None
		}
		out[i] = s
	}
	return newTimeline(out), nil
}
