package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log"
	"sync"

	"github.com/ivlev/pdf2lecture/internal/analyzer"
	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/timeline"
	"github.com/ivlev/pdf2lecture/internal/video"
)

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// scenarioTimeline is three parts of 3s, 4s and 5s; the first two share a visual.
func scenarioTimeline() *timeline.Timeline {
	b := timeline.NewBuilder()
	b.Append(timeline.Segment{Visual: "v1.png", AudioRef: "a1.mp3", Heading: "Cells"}, 3)
	b.Append(timeline.Segment{Visual: "v1.png", AudioRef: "a2.mp3", Heading: "Cells"}, 4)
	b.Append(timeline.Segment{Visual: "v2.png", AudioRef: "a3.mp3", Heading: "Mitosis"}, 5)
	tl, err := b.Build()
	if err != nil {
		panic(err)
	}
	return tl
}

func scenarioDoc() narration.Document {
	part := func(audio string, dur float64) narration.Part {
		return narration.Part{Summary: "sum", AudioRef: audio, Duration: dur, Translated: "body " + audio}
	}
	return narration.Document{
		{Name: "page_1", Regions: []narration.Region{
			{Name: "r1", PageImage: "p1.png", Crop: "r1.png", Transcript: "cells",
				Headings: []narration.Heading{{Label: "Cells", Parts: []narration.Part{part("a1.mp3", 3), part("a2.mp3", 4)}}}},
			{Name: "r2", PageImage: "p1.png", Crop: "r2.png", Transcript: "mitosis",
				Headings: []narration.Heading{{Label: "Mitosis", Parts: []narration.Part{part("a3.mp3", 5)}}}},
		}},
	}
}

// countingServices classifies everything as text and hands out a new
// image reference on every synthesis, like a generative service would.
type countingServices struct {
	mu          sync.Mutex
	classified  int
	synthesized int
}

func (f *countingServices) Classify(ctx context.Context, ref string) (analyzer.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified++
	return analyzer.Text, nil
}

func (f *countingServices) Synthesize(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthesized++
	return fmt.Sprintf("synth://%s/%d", prompt, f.synthesized), nil
}

func (f *countingServices) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classified, f.synthesized
}

// solidLoader returns a flat image for every known ref.
type solidLoader map[string]color.RGBA

func (l solidLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	c, ok := l[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img, nil
}

// drainEncoder pulls every frame without running ffmpeg.
type drainEncoder struct {
	mu     sync.Mutex
	frames int
	audio  []video.AudioTrack
	params video.Params
	sizes  map[image.Rectangle]int
}

func (e *drainEncoder) Encode(ctx context.Context, src video.FrameSource, out string, audio []video.AudioTrack, p video.Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio, e.params = audio, p
	e.sizes = map[image.Rectangle]int{}
	for {
		frame, err := src.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		e.sizes[frame.Rect]++
		e.frames++
	}
}
