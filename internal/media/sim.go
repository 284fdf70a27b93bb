package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

var ErrPlayRejected = errors.New("play() rejected")

// SimAudio is an in-memory audio element. Time only moves when Tick is
// called (or Run drives it from a wall clock). Durations are looked up per
// source reference; unknown references fail to load.
type SimAudio struct {
	mu        sync.Mutex
	durations map[string]float64
	src       string
	duration  float64
	current   float64
	paused    bool
	ended     bool
	gen       uint64
	events    chan Event

	// RejectPlay makes the next Play calls fail, as an autoplay policy would.
	RejectPlay bool
}

func NewSimAudio(durations map[string]float64) *SimAudio {
	return &SimAudio{
		durations: durations,
		paused:    true,
		events:    make(chan Event, 256),
	}
}

// SetDuration registers or replaces the length of a source.
func (a *SimAudio) SetDuration(ref string, seconds float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.durations[ref] = seconds
}

func (a *SimAudio) Load(ctx context.Context, ref string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	a.paused = true
	a.current = 0
	a.ended = false

	d, ok := a.durations[ref]
	if !ok {
		a.src, a.duration = "", 0
		return a.gen, apperr.Media("load", ref, fmt.Errorf("no such source"))
	}
	a.src, a.duration = ref, d
	return a.gen, nil
}

func (a *SimAudio) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.src == "" {
		return apperr.Media("play", "", fmt.Errorf("no source loaded"))
	}
	if a.RejectPlay {
		a.paused = true
		return apperr.Media("play", a.src, ErrPlayRejected)
	}
	if a.ended {
		a.current = 0
		a.ended = false
	}
	a.paused = false
	return nil
}

func (a *SimAudio) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
}

func (a *SimAudio) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

func (a *SimAudio) CurrentTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *SimAudio) SetCurrentTime(t float64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.current = clampTime(t, a.duration)
	a.ended = false
	return a.gen
}

func (a *SimAudio) Duration() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

func (a *SimAudio) Source() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.src
}

func (a *SimAudio) Events() <-chan Event {
	return a.events
}

// Generation returns the current element generation.
func (a *SimAudio) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// Tick advances playback by dt seconds if playing, emitting a time update
// and, when the source runs out, an ended event. Events that do not fit in
// the buffer are dropped, like coalesced browser time updates.
func (a *SimAudio) Tick(dt float64) {
	a.mu.Lock()
	if a.paused || a.src == "" {
		a.mu.Unlock()
		return
	}
	a.current = clampTime(a.current+dt, a.duration)
	evs := []Event{{Kind: TimeUpdate, Gen: a.gen, Time: a.current}}
	if a.current >= a.duration {
		a.paused = true
		a.ended = true
		evs = append(evs, Event{Kind: Ended, Gen: a.gen, Time: a.current})
	}
	a.mu.Unlock()

	for _, ev := range evs {
		select {
		case a.events <- ev:
		default:
		}
	}
}

// Run ticks the element from the wall clock until ctx is done.
func (a *SimAudio) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

func clampTime(t, duration float64) float64 {
	if t < 0 {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}
