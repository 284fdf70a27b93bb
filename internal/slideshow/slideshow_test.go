package slideshow

import (
	"context"
	"fmt"
	"testing"

	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/media"
	"github.com/ivlev/pdf2lecture/internal/transition"
)

func fiveImages() []string {
	imgs := make([]string, 5)
	for i := range imgs {
		imgs[i] = fmt.Sprintf("slide_%02d.png", i+1)
	}
	return imgs
}

func TestSlideshowScenario(t *testing.T) {
	s, err := New(fiveImages(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if s.PerImage() != 10 {
		t.Errorf("PerImage = %v, want 10", s.PerImage())
	}

	s.Advance(25)
	if s.Index() != 2 {
		t.Errorf("index at t=25 is %d, want 2", s.Index())
	}

	s.SkipToEnd()
	st := s.Snapshot()
	if st.Index != 4 || st.Time != 50 || !st.Ended {
		t.Errorf("after skip-to-end: %+v", st)
	}
}

func TestIndexAt(t *testing.T) {
	s, _ := New(fiveImages(), 50)
	tests := []struct {
		t    float64
		want int
	}{
		{-3, 0},
		{0, 0},
		{9.99, 0},
		{10, 1},
		{49.9, 4},
		{50, 4},
		{500, 4},
	}
	for _, tt := range tests {
		if got := s.IndexAt(tt.t); got != tt.want {
			t.Errorf("IndexAt(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}

	prev := 0
	for v := 0.0; v <= 50; v += 0.25 {
		i := s.IndexAt(v)
		if i < prev {
			t.Fatalf("index decreased at t=%v: %d -> %d", v, prev, i)
		}
		prev = i
	}
}

func TestIndexAtDegenerate(t *testing.T) {
	single, _ := New([]string{"only.png"}, 30)
	if single.IndexAt(0) != 0 || single.IndexAt(30) != 0 {
		t.Error("single image must always be index 0")
	}

	if _, err := New(nil, 10); !apperr.IsInput(err) {
		t.Errorf("empty image list: got %v, want InputError", err)
	}
}

func TestTransitionKindCycles(t *testing.T) {
	s, _ := New(fiveImages(), 50)
	var changes []Change
	s.OnChange = func(c Change) { changes = append(changes, c) }

	for _, v := range []float64{5, 15, 25, 35, 45, 44} {
		s.Advance(v)
	}
	s.SeekFraction(0)

	if len(changes) != 5 {
		t.Fatalf("got %d changes, want 5", len(changes))
	}
	want := []transition.Kind{transition.Fade, transition.Displacement, transition.Noise, transition.Fade, transition.Displacement}
	for i, c := range changes {
		if c.Kind != want[i] {
			t.Errorf("change %d kind %v, want %v", i, c.Kind, want[i])
		}
	}
	if c := changes[0]; c.Prev != 0 || c.Index != 1 || c.Previous != "slide_01.png" {
		t.Errorf("first change: %+v", c)
	}
	if last := changes[4]; last.Index != 0 || last.Prev != 4 {
		t.Errorf("seek back to start: %+v", last)
	}
}

func TestSeekFraction(t *testing.T) {
	s, _ := New(fiveImages(), 50)
	s.SeekFraction(0.5)
	if s.Time() != 25 || s.Index() != 2 {
		t.Errorf("SeekFraction(0.5): t=%v index=%d", s.Time(), s.Index())
	}
	s.SeekFraction(7)
	if s.Time() != 50 || s.Index() != 4 {
		t.Errorf("SeekFraction clamps: t=%v index=%d", s.Time(), s.Index())
	}
}

func TestNarrationDrivesSlideshow(t *testing.T) {
	audio := media.NewSimAudio(map[string]float64{"talk.mp3": 50})
	gen, err := audio.Load(context.Background(), "talk.mp3")
	if err != nil {
		t.Fatal(err)
	}
	s, _ := New(fiveImages(), audio.Duration())
	s.Attach(audio, gen)
	audio.Play()

	audio.Tick(12)
	s.HandleEvent(<-audio.Events())
	if s.Index() != 1 {
		t.Fatalf("index %d after 12s, want 1", s.Index())
	}

	audio.Tick(10)
	s.SeekFraction(0.9)
	s.HandleEvent(<-audio.Events())
	if s.Index() != 4 || audio.CurrentTime() != 45 {
		t.Errorf("update from before the seek was applied: index %d, audio %v", s.Index(), audio.CurrentTime())
	}

	audio.Tick(10)
	for len(audio.Events()) > 0 {
		s.HandleEvent(<-audio.Events())
	}
	if st := s.Snapshot(); !st.Ended || st.Index != 4 || st.Time != 50 {
		t.Errorf("narration end not applied: %+v", st)
	}
}
