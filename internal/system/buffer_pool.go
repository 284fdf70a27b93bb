package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool предоставляет механизмы повторного использования image.RGBA
// для снижения нагрузки на Garbage Collector (GC). Пулы разделены по
// размеру: текстуры и кадры одного вьюпорта переиспользуют друг друга.
type ImagePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex

	allocated atomic.Int64
	reused    atomic.Int64
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

var globalPool = NewImagePool()

// GetImage возвращает *image.RGBA из общего пула. Содержимое не очищается.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage возвращает *image.RGBA в общий пул.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// PoolStats reports allocations and reuses of the shared pool.
func PoolStats() (allocated, reused int64) {
	return globalPool.allocated.Load(), globalPool.reused.Load()
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	if img, ok := pool.Get().(*image.RGBA); ok {
		p.reused.Add(1)
		return img
	}
	p.allocated.Add(1)
	return image.NewRGBA(rect)
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
