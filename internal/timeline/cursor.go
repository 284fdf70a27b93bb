package timeline

// maxWalk bounds the local pointer walk of Seek; longer jumps fall back to
// the binary search index.
const maxWalk = 32

// Cursor remembers the last known segment of a timeline so that sequential
// playback and short scrubs resolve by following links from there.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	tl  *Timeline
	pos int
}

func NewCursor(tl *Timeline) *Cursor {
	return &Cursor{tl: tl}
}

func (c *Cursor) Timeline() *Timeline { return c.tl }

// Position is the arena index of the current segment.
func (c *Cursor) Position() int { return c.pos }

func (c *Cursor) Current() Segment { return c.tl.At(c.pos) }

// Seek moves to the segment owning second v and returns it. If v is inside
// the current segment nothing moves; otherwise the cursor walks Prev while v
// is before the segment and Next while v is after it.
func (c *Cursor) Seek(v int) Segment {
	v = c.tl.clamp(v)
	segs := c.tl.segs
	cur := c.pos
	if segs[cur].Contains(v) {
		return c.Current()
	}

	steps := 0
	for v < segs[cur].Start && segs[cur].Prev != None && steps < maxWalk {
		cur = segs[cur].Prev
		steps++
	}
	for v > segs[cur].End && segs[cur].Next != None && steps < maxWalk {
		cur = segs[cur].Next
		steps++
	}
	if !segs[cur].Contains(v) {
		cur = c.tl.Locate(v)
	}

	c.pos = cur
	return c.Current()
}

// Next advances to the following segment. At the tail it returns false and
// leaves the cursor where it is: the timeline has ended.
func (c *Cursor) Next() (Segment, bool) {
	next := c.tl.segs[c.pos].Next
	if next == None {
		return c.Current(), false
	}
	c.pos = next
	return c.Current(), true
}

// Prev steps back one segment; false at the head.
func (c *Cursor) Prev() (Segment, bool) {
	prev := c.tl.segs[c.pos].Prev
	if prev == None {
		return c.Current(), false
	}
	c.pos = prev
	return c.Current(), true
}

// Reset moves the cursor back to the head.
func (c *Cursor) Reset() {
	c.pos = 0
}
