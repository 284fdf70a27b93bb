// Package store persists narration documents by document id, together with
// the timeline built from them, so that a later view can mount the chain
// without calling the content services.
package store

import (
	"context"
	"errors"
	"log"

	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

var ErrNotFound = errors.New("narration not found")

// Store saves and loads narration documents keyed by document id.
// Exists is a cheap probe that never transfers the payload. The built chain
// is kept next to the narration; Delete drops both.
type Store interface {
	Save(ctx context.Context, docID string, doc narration.Document) error
	Load(ctx context.Context, docID string) (narration.Document, error)
	Exists(ctx context.Context, docID string) (bool, error)
	Delete(ctx context.Context, docID string) error

	SaveTimeline(ctx context.Context, docID string, tl *timeline.Timeline) error
	LoadTimeline(ctx context.Context, docID string) (*timeline.Timeline, error)
}

// Tiered combines a local fast-path store with a remote durable store.
// Reads try local first; a remote hit is written back to local. Writes go to
// both and only fail when neither succeeds.
type Tiered struct {
	Local  Store
	Remote Store
	Logger *log.Logger
}

func NewTiered(local, remote Store, logger *log.Logger) *Tiered {
	if logger == nil {
		logger = log.Default()
	}
	return &Tiered{Local: local, Remote: remote, Logger: logger}
}

func (t *Tiered) Save(ctx context.Context, docID string, doc narration.Document) error {
	return t.saveBoth(docID, "save", func(s Store) error { return s.Save(ctx, docID, doc) })
}

func (t *Tiered) SaveTimeline(ctx context.Context, docID string, tl *timeline.Timeline) error {
	return t.saveBoth(docID, "save timeline", func(s Store) error { return s.SaveTimeline(ctx, docID, tl) })
}

func (t *Tiered) saveBoth(docID, op string, save func(Store) error) error {
	var localErr, remoteErr error
	if t.Local != nil {
		if localErr = save(t.Local); localErr != nil {
			t.Logger.Printf("[!] store: local %s %s: %v", op, docID, localErr)
		}
	}
	if t.Remote != nil {
		if remoteErr = save(t.Remote); remoteErr != nil {
			t.Logger.Printf("[!] store: remote %s %s: %v", op, docID, remoteErr)
		}
	}

	switch {
	case t.Local == nil && t.Remote == nil:
		return errors.New("store: no backend configured")
	case t.Local != nil && t.Remote != nil && localErr != nil && remoteErr != nil:
		return errors.Join(localErr, remoteErr)
	case t.Remote == nil:
		return localErr
	case t.Local == nil:
		return remoteErr
	}
	return nil
}

func (t *Tiered) Load(ctx context.Context, docID string) (narration.Document, error) {
	if t.Local != nil {
		doc, err := t.Local.Load(ctx, docID)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			t.Logger.Printf("[!] store: local load %s: %v", docID, err)
		}
	}
	if t.Remote == nil {
		return nil, ErrNotFound
	}

	doc, err := t.Remote.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if t.Local != nil {
		if err := t.Local.Save(ctx, docID, doc); err != nil {
			t.Logger.Printf("[!] store: local backfill %s: %v", docID, err)
		}
	}
	return doc, nil
}

// LoadTimeline follows Load: local first, a remote hit is written back.
func (t *Tiered) LoadTimeline(ctx context.Context, docID string) (*timeline.Timeline, error) {
	if t.Local != nil {
		tl, err := t.Local.LoadTimeline(ctx, docID)
		if err == nil {
			return tl, nil
		}
		if !errors.Is(err, ErrNotFound) {
			t.Logger.Printf("[!] store: local timeline %s: %v", docID, err)
		}
	}
	if t.Remote == nil {
		return nil, ErrNotFound
	}

	tl, err := t.Remote.LoadTimeline(ctx, docID)
	if err != nil {
		return nil, err
	}
	if t.Local != nil {
		if err := t.Local.SaveTimeline(ctx, docID, tl); err != nil {
			t.Logger.Printf("[!] store: local timeline backfill %s: %v", docID, err)
		}
	}
	return tl, nil
}

func (t *Tiered) Exists(ctx context.Context, docID string) (bool, error) {
	if t.Local != nil {
		if ok, err := t.Local.Exists(ctx, docID); err == nil && ok {
			return true, nil
		}
	}
	if t.Remote == nil {
		return false, nil
	}
	return t.Remote.Exists(ctx, docID)
}

func (t *Tiered) Delete(ctx context.Context, docID string) error {
	var errs []error
	for _, s := range []Store{t.Local, t.Remote} {
		if s == nil {
			continue
		}
		if err := s.Delete(ctx, docID); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
