package engine

import (
	"bytes"
	"context"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/pdf2lecture/internal/player"
	"github.com/ivlev/pdf2lecture/internal/timeline"
	"github.com/ivlev/pdf2lecture/internal/transition"
	"github.com/ivlev/pdf2lecture/internal/video"
)

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		want     int
	}{
		{14, 30, 420},
		{0.5, 30, 15},
		{0.01, 30, 1},
		{0, 30, 1},
		{2, 0, 60},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.duration, tt.fps); got != tt.want {
			t.Errorf("FrameCount(%v, %d) = %d, want %d", tt.duration, tt.fps, got, tt.want)
		}
	}
}

func TestTimelineDuration(t *testing.T) {
	if got := TimelineDuration(scenarioTimeline()); got != 14 {
		t.Errorf("TimelineDuration = %v, want 14", got)
	}

	b := timeline.NewBuilder()
	b.Append(timeline.Segment{}, 2.5)
	tl, _ := b.Build()
	if got := TimelineDuration(tl); got != 3 {
		t.Errorf("rounded-up tail: got %v, want 3", got)
	}
}

func newExporter(enc video.Encoder) *Exporter {
	return &Exporter{
		Encoder: enc,
		Loader: solidLoader{
			"v1.png": {R: 255, A: 255},
			"v2.png": {B: 255, A: 255},
		},
		Params:             video.Params{Width: 32, Height: 18, FPS: 10},
		TransitionDuration: 200 * time.Millisecond,
		Logger:             quietLogger(),
	}
}

func TestExportTimeline(t *testing.T) {
	enc := &drainEncoder{}
	e := newExporter(enc)

	rep, err := e.ExportTimeline(context.Background(), scenarioTimeline(), "out.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if enc.frames != 140 || rep.Frames != 140 {
		t.Errorf("frames: encoder %d, report %d, want 140", enc.frames, rep.Frames)
	}
	if enc.sizes[image.Rect(0, 0, 32, 18)] != 140 {
		t.Errorf("frame sizes: %v", enc.sizes)
	}
	if enc.params.Duration != 14 || enc.params.FPS != 10 {
		t.Errorf("params: %+v", enc.params)
	}

	offsets := []float64{0, 4, 9}
	if len(enc.audio) != len(offsets) {
		t.Fatalf("audio tracks: %+v", enc.audio)
	}
	for i, want := range offsets {
		if enc.audio[i].Offset != want {
			t.Errorf("track %d at %v, want %v", i, enc.audio[i].Offset, want)
		}
	}
	if rep.Visuals != 2 || rep.Missing != 0 {
		t.Errorf("shared visual should be shown once: visuals=%d missing=%d", rep.Visuals, rep.Missing)
	}
}

func TestExportTimelineMissingVisual(t *testing.T) {
	enc := &drainEncoder{}
	e := newExporter(enc)
	e.Loader = solidLoader{"v1.png": {G: 255, A: 255}}

	rep, err := e.ExportTimeline(context.Background(), scenarioTimeline(), "out.mp4")
	if err != nil {
		t.Fatalf("a missing visual must not abort the export: %v", err)
	}
	if rep.Missing != 1 || rep.Frames != 140 {
		t.Errorf("missing=%d frames=%d", rep.Missing, rep.Frames)
	}
}

func TestExportSlideshow(t *testing.T) {
	enc := &drainEncoder{}
	e := newExporter(enc)
	e.Loader = solidLoader{
		"1.png": {R: 255, A: 255},
		"2.png": {G: 255, A: 255},
		"3.png": {B: 255, A: 255},
	}

	rep, err := e.ExportSlideshow(context.Background(), []string{"1.png", "2.png", "3.png"}, "talk.mp3", 3, "out.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Frames != 30 || rep.Visuals != 3 || rep.Segments != 3 {
		t.Errorf("report: %+v", rep)
	}
	if len(enc.audio) != 1 || enc.audio[0].Path != "talk.mp3" || enc.audio[0].Offset != 0 {
		t.Errorf("audio: %+v", enc.audio)
	}

	if _, err := e.ExportSlideshow(context.Background(), nil, "", 3, "out.mp4"); err == nil {
		t.Error("empty slideshow accepted")
	}
}

func TestPlayFastForward(t *testing.T) {
	r := transition.NewRenderer(16, 9, 0, transition.NewManualClock(time.Unix(0, 0)))
	r.Loader = solidLoader{"v1.png": {R: 255, A: 255}, "v2.png": {B: 255, A: 255}}
	r.Logger = quietLogger()

	var logs bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := Play(ctx, scenarioTimeline(), r, PlayOptions{Speed: 100, Tick: 5 * time.Millisecond, Autoplay: true}, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if st.State != player.Ended || st.Slider != 14 {
		t.Errorf("final state: %+v", st)
	}
	if n := strings.Count(logs.String(), "[>] Segment"); n != 3 {
		t.Errorf("logged %d segments, want 3:\n%s", n, logs.String())
	}
	if frame, err := r.Frame(ctx); err != nil || frame.Rect.Dx() != 16 {
		t.Errorf("renderer after playback: %v", err)
	}
}

func TestReportOutput(t *testing.T) {
	rep := Report{Input: "/tmp/lecture.json", Output: "out.mp4", Frames: 300, Segments: 3, Duration: 10, Elapsed: 2 * time.Second}

	var buf bytes.Buffer
	WriteReport(&buf, "v1", rep)
	for _, want := range []string{"PERFORMANCE REPORT", "Build: v1", "Frames: 300", "Effective FPS: 150.00"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report lacks %q:\n%s", want, buf.String())
		}
	}

	path := filepath.Join(t.TempDir(), "benchmark.log")
	for range 2 {
		if err := AppendBenchmark(path, "v1", rep); err != nil {
			t.Fatal(err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Input: lecture.json") {
		t.Errorf("benchmark log:\n%s", data)
	}
}

// countingLoader records every visual the renderer asks for.
type countingLoader struct {
	solidLoader
	mu   sync.Mutex
	refs []string
}

func (l *countingLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	l.mu.Lock()
	l.refs = append(l.refs, ref)
	l.mu.Unlock()
	return l.solidLoader.Load(ctx, ref)
}

func TestPlaySlideshow(t *testing.T) {
	images := []string{"1.png", "2.png", "3.png"}
	fast := PlayOptions{Speed: 100, Tick: 5 * time.Millisecond}

	tests := []struct {
		name      string
		opt       PlayOptions
		wantShown []string
		wantLog   []string
	}{
		{"from start", fast, []string{"1.png", "2.png", "3.png"}, []string{"[>] Image 2/3 (fade) 2.png", "[>] Image 3/3"}},
		{"seek", PlayOptions{Speed: 100, Tick: 5 * time.Millisecond, Seek: 0.5}, []string{"1.png", "2.png", "3.png"}, []string{"[>] Image 2/3 (fade)"}},
		{"skip to end", PlayOptions{SkipToEnd: true}, []string{"1.png", "3.png"}, []string{"[>] Image 3/3 (fade) 3.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &countingLoader{solidLoader: solidLoader{
				"1.png": {R: 255, A: 255},
				"2.png": {G: 255, A: 255},
				"3.png": {B: 255, A: 255},
			}}
			r := transition.NewRenderer(16, 9, 0, transition.NewManualClock(time.Unix(0, 0)))
			r.Loader = loader
			r.Logger = quietLogger()
			defer r.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var logs bytes.Buffer

			st, err := PlaySlideshow(ctx, images, "talk.mp3", 3, r, tt.opt, log.New(&logs, "", 0))
			if err != nil {
				t.Fatalf("PlaySlideshow: %v", err)
			}
			if !st.Ended || st.Index != 2 || st.Time != 3 {
				t.Errorf("final state: %+v", st)
			}
			if strings.Join(loader.refs, ",") != strings.Join(tt.wantShown, ",") {
				t.Errorf("shown %v, want %v", loader.refs, tt.wantShown)
			}
			for _, w := range tt.wantLog {
				if !strings.Contains(logs.String(), w) {
					t.Errorf("log lacks %q:\n%s", w, logs.String())
				}
			}
		})
	}
}

func TestPlaySlideshowEmpty(t *testing.T) {
	if _, err := PlaySlideshow(context.Background(), nil, "", 3, nil, PlayOptions{}, quietLogger()); err == nil {
		t.Error("empty slideshow accepted")
	}
}
