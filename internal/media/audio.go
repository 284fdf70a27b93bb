// Package media defines the audio element contract the playback controllers
// drive, plus a simulated element for headless playback and tests.
package media

import "context"

// EventKind identifies an audio element notification.
type EventKind int

const (
	TimeUpdate EventKind = iota
	Ended
	Error
)

func (k EventKind) String() string {
	switch k {
	case TimeUpdate:
		return "timeupdate"
	case Ended:
		return "ended"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by an audio element. Gen is the element generation at
// emission time; every Load and SetCurrentTime starts a new generation, so a
// consumer can drop notifications that predate its last command.
type Event struct {
	Kind EventKind
	Gen  uint64
	Time float64
	Err  error
}

// Audio is a single media element playing one source at a time.
//
// Load replaces the source and waits for its metadata; it returns the new
// generation. Play may be rejected (for example by an autoplay policy), in
// which case the element stays paused. Paused always reports the element's
// real state.
type Audio interface {
	Load(ctx context.Context, ref string) (uint64, error)
	Play() error
	Pause()
	Paused() bool
	CurrentTime() float64
	SetCurrentTime(t float64) uint64
	Duration() float64
	Source() string
	Events() <-chan Event
}
