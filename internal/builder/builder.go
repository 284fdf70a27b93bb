// Package builder turns structured narration into a linked segment timeline,
// consulting the content classifier and the image synthesizer per region.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/pdf2lecture/internal/analyzer"
	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/collab"
	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/store"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

// DefaultCallTimeout bounds every classifier and synthesizer call.
const DefaultCallTimeout = 15 * time.Second

var ErrNoSegments = errors.New("narration produced no segments")

// Builder builds timelines. Classifier and Synthesizer are required; Store
// is optional and receives the raw narration and the built timeline after a
// successful build.
type Builder struct {
	Classifier  analyzer.Classifier
	Synthesizer collab.Synthesizer
	Store       store.Store
	CallTimeout time.Duration
	Workers     int
	Logger      *log.Logger
}

// Stats describes one build for logging and reports.
type Stats struct {
	Regions         int
	Segments        int
	Skipped         int
	Classifications int
	Syntheses       int
	FailedCalls     int
	Total           int
	Elapsed         time.Duration
}

// regionPlan is the per-region outcome of the classification stage.
type regionPlan struct {
	region   narration.Region
	category analyzer.Category
}

// Build classifies every region (in parallel, bounded by Workers), then
// walks regions in source order synthesizing illustrative images for Text
// regions and linking each narrated part as the new tail of the chain.
//
// Any single classifier or synthesizer failure falls back to the crop image.
// The only fatal outcome is a document that yields no segments, reported as
// an apperr.InputError. Cancelling ctx abandons the build and discards every
// partial result.
func (b *Builder) Build(ctx context.Context, docID string, doc narration.Document) (*timeline.Timeline, Stats, error) {
	started := time.Now()
	stats := Stats{}

	if err := doc.Validate(); err != nil {
		if errors.Is(err, narration.ErrEmpty) {
			err = ErrNoSegments
		}
		return nil, stats, apperr.Input("build "+docID, err)
	}

	regions := doc.Regions()
	stats.Regions = len(regions)

	cache := analyzer.NewCache(b.Classifier)
	cache.Timeout = b.callTimeout()
	plans, err := b.classify(ctx, cache, regions, &stats)
	if err != nil {
		return nil, stats, err
	}
	stats.Classifications = cache.Calls()

	tb := timeline.NewBuilder()
	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		visual, original := plan.region.Crop, true
		if plan.category == analyzer.Text && hasAudio(plan.region) {
			if ref, ok := b.synthesize(ctx, plan.region, &stats); ok {
				visual, original = ref, false
			}
		}

		for _, h := range plan.region.Headings {
			for j, part := range h.Parts {
				if part.AudioRef == "" {
					b.logger().Printf("[!] builder: %s region %d %q heading %q part %d has no audio, skipped",
						docID, i, plan.region.Name, h.Label, j)
					stats.Skipped++
					continue
				}
				tb.Append(timeline.Segment{
					Visual:     visual,
					Original:   original,
					AudioRef:   part.AudioRef,
					Heading:    h.Label,
					Body:       part.Translated,
					Summary:    part.Summary,
					PageImage:  plan.region.PageImage,
					Transcript: plan.region.Transcript,
					Markers:    part.Markers,
				}, part.Duration)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	tl, err := tb.Build()
	if err != nil {
		return nil, stats, apperr.Input("build "+docID, ErrNoSegments)
	}

	stats.Segments = tl.Len()
	stats.Total = tl.Total()
	stats.Elapsed = time.Since(started)

	b.persist(ctx, docID, doc, tl)
	return tl, stats, nil
}

// classify runs one bounded classification per region. Regions sharing a
// crop image share one call through the cache. Results land at the index of
// their region so ordering does not depend on completion order.
func (b *Builder) classify(ctx context.Context, cache *analyzer.Cache, regions []narration.Region, stats *Stats) ([]regionPlan, error) {
	plans := make([]regionPlan, len(regions))
	failed := make([]bool, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for i, r := range regions {
		g.Go(func() error {
			plans[i].region = r
			if !hasAudio(r) {
				plans[i].category = analyzer.Fallback
				return nil
			}

			cat, err := bounded(gctx, b.callTimeout(), func(ctx context.Context) (analyzer.Category, error) {
				return cache.Classify(ctx, r.Crop)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logger().Printf("[!] builder: classify region %q (%s): %v, using crop image",
					r.Name, r.Crop, apperr.External("classifier", r.Crop, err))
				cat = analyzer.Fallback
				failed[i] = true
			}
			plans[i].category = cat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range failed {
		if f {
			stats.FailedCalls++
		}
	}
	return plans, nil
}

func (b *Builder) synthesize(ctx context.Context, r narration.Region, stats *Stats) (string, bool) {
	if b.Synthesizer == nil {
		return "", false
	}

	stats.Syntheses++
	ref, err := bounded(ctx, b.callTimeout(), func(ctx context.Context) (string, error) {
		return b.Synthesizer.Synthesize(ctx, r.Prompt())
	})
	if err == nil && ref == "" {
		err = fmt.Errorf("empty image reference")
	}
	if err != nil {
		if ctx.Err() == nil {
			stats.FailedCalls++
			b.logger().Printf("[!] builder: synthesize region %q: %v, using crop image",
				r.Name, apperr.External("synthesizer", r.Name, err))
		}
		return "", false
	}
	return ref, true
}

func (b *Builder) persist(ctx context.Context, docID string, doc narration.Document, tl *timeline.Timeline) {
	if b.Store == nil || docID == "" {
		return
	}
	if err := b.Store.Save(ctx, docID, doc); err != nil {
		b.logger().Printf("[!] builder: persist %s: %v", docID, err)
	}
	if err := b.Store.SaveTimeline(ctx, docID, tl); err != nil {
		b.logger().Printf("[!] builder: persist timeline %s: %v", docID, err)
	}
}

// bounded runs call with a deadline and returns when the deadline passes even
// if call ignores its context.
func bounded[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func hasAudio(r narration.Region) bool {
	for _, h := range r.Headings {
		for _, p := range h.Parts {
			if p.AudioRef != "" {
				return true
			}
		}
	}
	return false
}

func (b *Builder) callTimeout() time.Duration {
	if b.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return b.CallTimeout
}

func (b *Builder) workers() int {
	if b.Workers <= 0 {
		return 4
	}
	return b.Workers
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}
