package timeline

import (
	"encoding/json"
	"sort"
)

// Timeline is an immutable chain of segments with a precomputed total
// duration and a sorted start index for random access.
type Timeline struct {
	segs   []Segment
	starts []int
	total  int
}

func newTimeline(segs []Segment) *Timeline {
	starts := make([]int, len(segs))
	total := 0
	for i, s := range segs {
		starts[i] = s.Start
		if s.End > total {
			total = s.End
		}
	}
	return &Timeline{segs: segs, starts: starts, total: total}
}

func (t *Timeline) Len() int { return len(t.segs) }

// Total is the largest End of the chain.
func (t *Timeline) Total() int { return t.total }

// At returns a copy of the i-th segment.
func (t *Timeline) At(i int) Segment { return t.segs[i].clone() }

func (t *Timeline) Head() Segment { return t.At(0) }

func (t *Timeline) Tail() Segment { return t.At(len(t.segs) - 1) }

// Segments returns a copy of the whole chain in order.
func (t *Timeline) Segments() []Segment {
	out := make([]Segment, len(t.segs))
	for i := range t.segs {
		out[i] = t.segs[i].clone()
	}
	return out
}

// Locate returns the index of the segment owning second v using binary
// search over segment starts. Values outside [first start, Total] clamp to
// the head or tail.
func (t *Timeline) Locate(v int) int {
	if v <= t.starts[0] {
		return 0
	}
	i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > v }) - 1
	if i < 0 {
		return 0
	}
	return i
}

func (t *Timeline) clamp(v int) int {
	if v < t.segs[0].Start {
		return t.segs[0].Start
	}
	if v > t.total {
		return t.total
	}
	return v
}

type timelineJSON struct {
	Total    int       `json:"total"`
	Segments []Segment `json:"segments"`
}

func (t *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(timelineJSON{Total: t.total, Segments: t.segs})
}

func (t *Timeline) UnmarshalJSON(data []byte) error {
	var raw timelineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tl, err := FromSegments(raw.Segments)
	if err != nil {
		return err
	}
	*t = *tl
	return nil
}
