package analyzer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes classifications by image reference for one build session.
// Concurrent requests for the same reference share one upstream call. Only
// successful results are stored, so a failed call can be retried by the next
// session.
//
// The shared call does not belong to any one caller: it runs detached from
// the callers' cancellation, bounded by Timeout, and each caller stops
// waiting when its own ctx is done.
type Cache struct {
	inner Classifier
	// Timeout bounds one upstream call; zero means no bound.
	Timeout time.Duration

	mu      sync.Mutex
	entries map[string]Category
	group   singleflight.Group
	calls   int
}

func NewCache(inner Classifier) *Cache {
	return &Cache{inner: inner, entries: make(map[string]Category)}
}

func (c *Cache) Classify(ctx context.Context, imageRef string) (Category, error) {
	c.mu.Lock()
	if cat, ok := c.entries[imageRef]; ok {
		c.mu.Unlock()
		return cat, nil
	}
	c.mu.Unlock()

	upstream := context.WithoutCancel(ctx)
	ch := c.group.DoChan(imageRef, func() (interface{}, error) {
		c.mu.Lock()
		c.calls++
		c.mu.Unlock()

		callCtx := upstream
		if c.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(upstream, c.Timeout)
			defer cancel()
		}
		cat, err := c.inner.Classify(callCtx, imageRef)
		if err != nil {
			return Category(""), err
		}
		c.mu.Lock()
		c.entries[imageRef] = cat
		c.mu.Unlock()
		return cat, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Category), nil
	}
}

// Lookup returns a cached category without calling upstream.
func (c *Cache) Lookup(imageRef string) (Category, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.entries[imageRef]
	return cat, ok
}

// Calls is the number of upstream classifications performed.
func (c *Cache) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
