package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/pdf2lecture/internal/apperr"
	"github.com/ivlev/pdf2lecture/internal/builder"
	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/store"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

// ErrSuperseded is returned to an Open whose result arrived after a newer
// Open started. The result is discarded.
var ErrSuperseded = errors.New("document superseded by a newer open")

// Provider produces the raw narration for a document when no persisted copy
// exists, for example by decoding an uploaded file.
type Provider func(ctx context.Context) (narration.Document, error)

// Document is an opened, playable document.
type Document struct {
	ID        string
	Token     string
	Timeline  *timeline.Timeline
	Stats     builder.Stats
	FromStore bool
}

// Session owns the currently open document. Each Open gets a fresh token and
// cancels whatever the previous Open was still doing.
type Session struct {
	Builder *builder.Builder
	Store   store.Store
	Logger  *log.Logger

	mu      sync.Mutex
	token   string
	cancel  context.CancelFunc
	current *Document
}

// Open resolves docID to a timeline. A persisted chain is mounted as is,
// without any classifier or synthesizer call. Otherwise persisted narration
// is preferred (probe first, then load) over asking provider, and the
// narration is built. An empty docID gets a generated one.
func (s *Session) Open(ctx context.Context, docID string, provider Provider) (*Document, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	ctx, token, done := s.begin(ctx)
	defer done()

	if tl := s.cached(ctx, docID); tl != nil {
		if err := ctx.Err(); err != nil {
			return nil, s.discard(token, err)
		}
		s.logger().Printf("[*] Document %s: %d segments, %ds, mounted from store", docID, tl.Len(), tl.Total())
		return s.mount(docID, token, tl, true)
	}

	raw, fromStore, err := s.fetch(ctx, docID, provider)
	if err != nil {
		return nil, s.discard(token, err)
	}
	if s.Builder == nil {
		return nil, errors.New("session has no builder")
	}

	tl, stats, err := s.Builder.Build(ctx, docID, raw)
	if err != nil {
		return nil, s.discard(token, err)
	}
	s.logger().Printf("[*] Document %s: %d segments, %ds, %d regions (%d classified, %d synthesized, %d fallbacks) in %v",
		docID, stats.Segments, stats.Total, stats.Regions, stats.Classifications, stats.Syntheses, stats.FailedCalls, stats.Elapsed.Round(time.Millisecond))

	return s.commit(&Document{ID: docID, Token: token, Timeline: tl, Stats: stats, FromStore: fromStore})
}

// OpenTimeline mounts precomputed segment data without building.
func (s *Session) OpenTimeline(ctx context.Context, docID string, tl *timeline.Timeline) (*Document, error) {
	if tl == nil || tl.Len() == 0 {
		return nil, apperr.Input("open "+docID, timeline.ErrEmpty)
	}
	ctx, token, done := s.begin(ctx)
	defer done()
	if err := ctx.Err(); err != nil {
		return nil, s.discard(token, err)
	}
	return s.mount(docID, token, tl, false)
}

func (s *Session) mount(docID, token string, tl *timeline.Timeline, fromStore bool) (*Document, error) {
	return s.commit(&Document{
		ID:        docID,
		Token:     token,
		Timeline:  tl,
		Stats:     builder.Stats{Segments: tl.Len(), Total: tl.Total()},
		FromStore: fromStore,
	})
}

// cached returns the persisted chain for docID, or nil.
func (s *Session) cached(ctx context.Context, docID string) *timeline.Timeline {
	if s.Store == nil {
		return nil
	}
	tl, err := s.Store.LoadTimeline(ctx, docID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		s.logger().Printf("[!] Store timeline %s: %v, rebuilding", docID, err)
		return nil
	case tl == nil || tl.Len() == 0:
		return nil
	}
	return tl
}

// Current returns the open document, or nil.
func (s *Session) Current() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close cancels in-flight work and forgets the current document.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token = ""
	s.current = nil
}

func (s *Session) begin(parent context.Context) (context.Context, string, func()) {
	ctx, cancel := context.WithCancel(parent)
	token := uuid.NewString()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token = token
	s.cancel = cancel
	s.mu.Unlock()

	return ctx, token, cancel
}

func (s *Session) commit(doc *Document) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Token != s.token {
		s.logger().Printf("[!] Document %s finished after a newer open, discarded", doc.ID)
		return nil, ErrSuperseded
	}
	s.current = doc
	s.cancel = nil
	return doc, nil
}

// discard maps errors of a superseded open to ErrSuperseded.
func (s *Session) discard(token string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return ErrSuperseded
	}
	return err
}

func (s *Session) fetch(ctx context.Context, docID string, provider Provider) (narration.Document, bool, error) {
	if s.Store != nil {
		ok, err := s.Store.Exists(ctx, docID)
		switch {
		case err != nil:
			s.logger().Printf("[!] Store probe %s: %v", docID, err)
		case ok:
			doc, err := s.Store.Load(ctx, docID)
			if err == nil {
				s.logger().Printf("[*] Document %s loaded from store", docID)
				return doc, true, nil
			}
			s.logger().Printf("[!] Store load %s: %v", docID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if provider == nil {
		return nil, false, apperr.Input("open "+docID, fmt.Errorf("no persisted narration and no source"))
	}
	doc, err := provider(ctx)
	if err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

func (s *Session) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}
