package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// LocalStore keeps one YAML record per document under Dir, plus one for
// the built timeline.
type LocalStore struct {
	Dir string
}

type record struct {
	DocumentID string             `yaml:"document_id"`
	SavedAt    time.Time          `yaml:"saved_at"`
	Narration  narration.Document `yaml:"narration"`
}

type timelineRecord struct {
	DocumentID string             `yaml:"document_id"`
	SavedAt    time.Time          `yaml:"saved_at"`
	Segments   []timeline.Segment `yaml:"segments"`
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) path(docID string) string {
	return filepath.Join(s.Dir, unsafeID.ReplaceAllString(docID, "_")+".yaml")
}

func (s *LocalStore) timelinePath(docID string) string {
	return filepath.Join(s.Dir, unsafeID.ReplaceAllString(docID, "_")+".timeline.yaml")
}

func (s *LocalStore) Save(_ context.Context, docID string, doc narration.Document) error {
	data, err := yaml.Marshal(record{DocumentID: docID, SavedAt: time.Now().UTC(), Narration: doc})
	if err != nil {
		return fmt.Errorf("encode %s: %w", docID, err)
	}
	return s.write(s.path(docID), data)
}

func (s *LocalStore) SaveTimeline(_ context.Context, docID string, tl *timeline.Timeline) error {
	if tl == nil {
		return fmt.Errorf("save timeline %s: %w", docID, timeline.ErrEmpty)
	}
	data, err := yaml.Marshal(timelineRecord{DocumentID: docID, SavedAt: time.Now().UTC(), Segments: tl.Segments()})
	if err != nil {
		return fmt.Errorf("encode timeline %s: %w", docID, err)
	}
	return s.write(s.timelinePath(docID), data)
}

func (s *LocalStore) write(path string, data []byte) error {
	// Пишем во временный файл и переименовываем, чтобы читатель не увидел половину записи
	tmp, err := os.CreateTemp(s.Dir, ".narration-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *LocalStore) Load(_ context.Context, docID string) (narration.Document, error) {
	data, err := os.ReadFile(s.path(docID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docID, err)
	}
	if rec.DocumentID != docID {
		return nil, fmt.Errorf("record %s holds document %q", docID, rec.DocumentID)
	}
	return rec.Narration, nil
}

func (s *LocalStore) LoadTimeline(_ context.Context, docID string) (*timeline.Timeline, error) {
	data, err := os.ReadFile(s.timelinePath(docID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec timelineRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode timeline %s: %w", docID, err)
	}
	if rec.DocumentID != docID {
		return nil, fmt.Errorf("timeline record %s holds document %q", docID, rec.DocumentID)
	}
	return timeline.FromSegments(rec.Segments)
}

func (s *LocalStore) Exists(_ context.Context, docID string) (bool, error) {
	_, err := os.Stat(s.path(docID))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStore) Delete(_ context.Context, docID string) error {
	if err := os.Remove(s.timelinePath(docID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	err := os.Remove(s.path(docID))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
