package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/timeline"
)

const (
	keyPrefix         = "narration:"
	timelineKeyPrefix = "timeline:"
)

// RedisStore keeps narration documents in their wire JSON format and built
// timelines as timeline JSON.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. ttl <= 0 keeps records forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return NewRedisStore(client, ttl), nil
}

func (s *RedisStore) Save(ctx context.Context, docID string, doc narration.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", docID, err)
	}
	return s.client.Set(ctx, keyPrefix+docID, data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, docID string) (narration.Document, error) {
	data, err := s.client.Get(ctx, keyPrefix+docID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc narration.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docID, err)
	}
	return doc, nil
}

func (s *RedisStore) SaveTimeline(ctx context.Context, docID string, tl *timeline.Timeline) error {
	if tl == nil {
		return fmt.Errorf("save timeline %s: %w", docID, timeline.ErrEmpty)
	}
	data, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("encode timeline %s: %w", docID, err)
	}
	return s.client.Set(ctx, timelineKeyPrefix+docID, data, s.ttl).Err()
}

func (s *RedisStore) LoadTimeline(ctx context.Context, docID string) (*timeline.Timeline, error) {
	data, err := s.client.Get(ctx, timelineKeyPrefix+docID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tl := new(timeline.Timeline)
	if err := json.Unmarshal(data, tl); err != nil {
		return nil, fmt.Errorf("decode timeline %s: %w", docID, err)
	}
	return tl, nil
}

func (s *RedisStore) Exists(ctx context.Context, docID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+docID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, docID string) error {
	n, err := s.client.Del(ctx, keyPrefix+docID, timelineKeyPrefix+docID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
