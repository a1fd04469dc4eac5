// Package cache keeps rendered artifacts, such as chart images, in memory.
// The datasets never change after startup, so an entry only goes stale
// through its TTL or through eviction.
package cache

import (
	"context"
	"sync"
	"time"

	"finboard/internal/log"
)

// Cache is the read/write surface the HTTP layer depends on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Cleaner is implemented by caches whose expired entries can be swept.
type Cleaner interface {
	CleanExpired() int
}

// Sweeper periodically removes expired entries from registered caches.
type Sweeper struct {
	logger *log.Logger
	mu     sync.Mutex
	caches map[string]Cleaner

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(logger *log.Logger) *Sweeper {
	return &Sweeper{
		logger: logger,
		caches: make(map[string]Cleaner),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a named cache to the sweep.
func (s *Sweeper) Register(name string, c Cleaner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[name] = c
}

// Sweep cleans every registered cache once and returns the total removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for name, c := range s.caches {
		n := c.CleanExpired()
		if n > 0 && s.logger != nil {
			s.logger.DebugContext(ctx, "Expired cache entries removed", "cache", name, "removed", n)
		}
		total += n
	}
	return total
}

// Start sweeps on every tick until Stop is called.
func (s *Sweeper) Start(interval time.Duration) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start. It must only be called after
// Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}
