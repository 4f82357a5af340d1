package cache

import (
	"context"
	"time"

	applog "expensedash/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps expired entries from registered caches.
type Janitor struct {
	caches   []Cleaner
	interval time.Duration
	logger   *applog.Logger
}

// NewJanitor creates a janitor sweeping every interval.
func NewJanitor(interval time.Duration, logger *applog.Logger) *Janitor {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Janitor{
		interval: interval,
		logger:   logger.WithComponent(applog.ComponentSession),
	}
}

// Register adds a cache to the sweep list. Call before Run.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.Debug("Expired cache entries removed", applog.FieldCount, n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep runs one cleanup pass over every registered cache.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}
