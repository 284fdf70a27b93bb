package builder

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/pdf2lecture/internal/analyzer"
	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/collab"
	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/store"
)

type fakeServices struct {
	mu         sync.Mutex
	categories map[string]analyzer.Category
	classified []string
	prompts    []string
	failOn     map[string]bool
	hang       map[string]bool
}

func (f *fakeServices) Classify(ctx context.Context, ref string) (analyzer.Category, error) {
	f.mu.Lock()
	f.classified = append(f.classified, ref)
	fail, hang := f.failOn[ref], f.hang[ref]
	f.mu.Unlock()

	if hang {
		time.Sleep(time.Second)
	}
	if fail {
		return "", errors.New("classifier unavailable")
	}
	if c, ok := f.categories[ref]; ok {
		return c, nil
	}
	return analyzer.Diagram, nil
}

func (f *fakeServices) Synthesize(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.failOn["synth:"+prompt] {
		return "", errors.New("synthesizer unavailable")
	}
	return "synth://" + prompt, nil
}

func part(audio string, dur float64) narration.Part {
	return narration.Part{Summary: "sum " + audio, AudioRef: audio, Duration: dur, Translated: "body " + audio}
}

func scenarioDoc() narration.Document {
	return narration.Document{
		{Name: "page_1", Regions: []narration.Region{
			{Name: "r1", PageImage: "p1.png", Crop: "r1.png", Transcript: "cells divide",
				Headings: []narration.Heading{{Label: "Cells", Parts: []narration.Part{part("a1.mp3", 3), part("a2.mp3", 4)}}}},
			{Name: "r2", PageImage: "p1.png", Crop: "r2.png", Transcript: "mitosis diagram",
				Headings: []narration.Heading{{Label: "Mitosis", Parts: []narration.Part{part("a3.mp3", 5)}}}},
		}},
	}
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func TestBuildScenario(t *testing.T) {
	svc := &fakeServices{categories: map[string]analyzer.Category{"r1.png": analyzer.Text, "r2.png": analyzer.Diagram}}
	b := &Builder{Classifier: svc, Synthesizer: svc, Logger: quietLogger()}

	tl, stats, err := b.Build(context.Background(), "doc", scenarioDoc())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := [][2]int{{0, 3}, {4, 8}, {9, 14}}
	for i, w := range want {
		s := tl.At(i)
		if s.Start != w[0] || s.End != w[1] {
			t.Errorf("segment %d: [%d,%d], want [%d,%d]", i, s.Start, s.End, w[0], w[1])
		}
	}
	if tl.Total() != 14 {
		t.Errorf("Total = %d, want 14", tl.Total())
	}

	s0, s1, s2 := tl.At(0), tl.At(1), tl.At(2)
	if s0.Visual != "synth://cells divide" || s0.Visual != s1.Visual || s0.Original {
		t.Errorf("text region should reuse one synthesized image: %q %q", s0.Visual, s1.Visual)
	}
	if s2.Visual != "r2.png" || !s2.Original {
		t.Errorf("diagram region should keep its crop: %q", s2.Visual)
	}
	if len(svc.prompts) != 1 {
		t.Errorf("synthesizer called %d times, want 1", len(svc.prompts))
	}
	if len(svc.classified) != 2 {
		t.Errorf("classifier called %d times, want 2", len(svc.classified))
	}
	if s1.Heading != "Cells" || s1.Body != "body a2.mp3" || s1.Summary != "sum a2.mp3" || s1.PageImage != "p1.png" {
		t.Errorf("segment fields not carried: %+v", s1)
	}
	if stats.Segments != 3 || stats.Syntheses != 1 || stats.Total != 14 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestBuildFallsBackOnServiceFailures(t *testing.T) {
	svc := &fakeServices{
		categories: map[string]analyzer.Category{"r1.png": analyzer.Text},
		failOn:     map[string]bool{"r2.png": true, "synth:cells divide": true},
	}
	var logs bytes.Buffer
	b := &Builder{Classifier: svc, Synthesizer: svc, Logger: log.New(&logs, "", 0)}

	tl, stats, err := b.Build(context.Background(), "doc", scenarioDoc())
	if err != nil {
		t.Fatalf("one bad region must not abort the build: %v", err)
	}
	if tl.Len() != 3 {
		t.Fatalf("expected 3 segments, got %d", tl.Len())
	}
	if tl.At(0).Visual != "r1.png" || tl.At(2).Visual != "r2.png" {
		t.Errorf("failed calls should fall back to crops: %q, %q", tl.At(0).Visual, tl.At(2).Visual)
	}
	if stats.FailedCalls != 2 {
		t.Errorf("FailedCalls = %d, want 2", stats.FailedCalls)
	}
	if !strings.Contains(logs.String(), "using crop image") {
		t.Errorf("fallback not logged: %s", logs.String())
	}
}

func TestBuildBoundsSlowCalls(t *testing.T) {
	svc := &fakeServices{hang: map[string]bool{"r2.png": true}}
	b := &Builder{Classifier: svc, Synthesizer: svc, CallTimeout: 30 * time.Millisecond, Logger: quietLogger()}

	started := time.Now()
	tl, _, err := b.Build(context.Background(), "doc", scenarioDoc())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 500*time.Millisecond {
		t.Errorf("slow classifier stalled the build for %v", elapsed)
	}
	if tl.At(2).Visual != "r2.png" {
		t.Errorf("timed out region should keep its crop, got %q", tl.At(2).Visual)
	}
}

func TestBuildSkipsMissingAudio(t *testing.T) {
	doc := scenarioDoc()
	doc[0].Regions[0].Headings[0].Parts[0].AudioRef = ""

	svc := &fakeServices{}
	b := &Builder{Classifier: svc, Synthesizer: svc, Logger: quietLogger()}
	tl, stats, err := b.Build(context.Background(), "doc", doc)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tl.Len() != 2 || stats.Skipped != 1 {
		t.Errorf("Len = %d, Skipped = %d", tl.Len(), stats.Skipped)
	}
	if tl.Head().Start != 0 || tl.Head().End != 4 {
		t.Errorf("chain should start with the 4s part: [%d,%d]", tl.Head().Start, tl.Head().End)
	}
}

func TestBuildZeroSegmentsIsFatal(t *testing.T) {
	svc := &fakeServices{}
	b := &Builder{Classifier: svc, Synthesizer: svc, Logger: quietLogger()}

	noAudio := scenarioDoc()
	for _, r := range noAudio[0].Regions {
		for _, h := range r.Headings {
			for i := range h.Parts {
				h.Parts[i].AudioRef = ""
			}
		}
	}

	for name, doc := range map[string]narration.Document{"empty": nil, "no audio": noAudio} {
		t.Run(name, func(t *testing.T) {
			tl, _, err := b.Build(context.Background(), "doc", doc)
			if tl != nil {
				t.Error("no partial chain may be returned")
			}
			if !apperr.IsInput(err) || !errors.Is(err, ErrNoSegments) {
				t.Errorf("got %v, want InputError wrapping ErrNoSegments", err)
			}
		})
	}
}

func TestBuildCancelled(t *testing.T) {
	svc := &fakeServices{}
	b := &Builder{Classifier: svc, Synthesizer: svc, Logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tl, _, err := b.Build(ctx, "doc", scenarioDoc())
	if tl != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled build: tl=%v err=%v", tl, err)
	}
}

func TestBuildSharesClassificationPerCrop(t *testing.T) {
	doc := scenarioDoc()
	doc[0].Regions[1].Crop = "r1.png"

	svc := &fakeServices{}
	b := &Builder{Classifier: svc, Synthesizer: svc, Workers: 1, Logger: quietLogger()}
	if _, stats, err := b.Build(context.Background(), "doc", doc); err != nil || stats.Classifications != 1 {
		t.Errorf("Classifications = %d, err = %v", stats.Classifications, err)
	}
}

func TestBuildPersistsNarrationAndTimeline(t *testing.T) {
	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := &fakeServices{}
	b := &Builder{Classifier: svc, Synthesizer: collab.SynthesizerFunc(svc.Synthesize), Store: local, Logger: quietLogger()}

	if _, _, err := b.Build(context.Background(), "doc-42", scenarioDoc()); err != nil {
		t.Fatal(err)
	}
	saved, err := local.Load(context.Background(), "doc-42")
	if err != nil {
		t.Fatalf("raw narration not persisted: %v", err)
	}
	if saved.Count() != 3 || saved[0].Regions[1].Crop != "r2.png" {
		t.Errorf("persisted narration differs: %+v", saved)
	}
	chain, err := local.LoadTimeline(context.Background(), "doc-42")
	if err != nil {
		t.Fatalf("built timeline not persisted: %v", err)
	}
	if chain.Len() != 3 || chain.Total() != 14 || chain.At(2).Visual != "r2.png" {
		t.Errorf("persisted timeline differs: len=%d total=%d", chain.Len(), chain.Total())
	}
}
