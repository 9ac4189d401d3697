package entity

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/retry"
)

// Cache is the bounded, deduplicating entity cache shared by all jobs.
//
// Invariants:
//   - entry count never exceeds capacity; overflow evicts the
//     least-recently-accessed entry
//   - at most one fetch per identifier is in flight; concurrent callers
//     share its result
//   - fetch concurrency is bounded by its own limiter, independent of the
//     query limiter
//
// Eviction removes the map entry only. Renders hold *Entity pointers, so
// an evicted entity stays readable until its last reader drops it.
type Cache struct {
	fetcher Fetcher
	slots   chan struct{}
	policy  retry.Policy
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element // value: *cacheEntry
	order    *list.List               // front = most recently used
	inflight map[string]*inflightFetch
}

type cacheEntry struct {
	id     string
	entity *Entity
}

// inflightFetch is the shared record concurrent callers wait on.
type inflightFetch struct {
	done   chan struct{}
	entity *Entity
	err    error
}

// NewCache creates a cache over the given fetcher.
func NewCache(fetcher Fetcher, cfg config.EntityConfig, retryCfg config.RetryConfig, log *zap.SugaredLogger) *Cache {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	slots := cfg.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	capacity := cfg.CacheCapacity
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		fetcher:  fetcher,
		slots:    make(chan struct{}, slots),
		policy:   retry.FromConfig(retryCfg),
		logger:   log.Named("entity"),
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]*inflightFetch),
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Resolve returns the entity for id, fetching on miss. A hit marks the
// entry most-recently-used. Concurrent misses for the same id share one
// fetch and receive the same result, success or failure.
func (c *Cache) Resolve(ctx context.Context, id string) (*Entity, error) {
	entities, failures := c.ResolveAll(ctx, []string{id})
	if err, ok := failures[id]; ok {
		return nil, err
	}
	return entities[id], nil
}

// ResolveAll resolves every id and returns the entities that resolved.
// Cache misses this call owns are fetched in batches of BatchSize; misses
// another caller already has in flight are waited on instead. Per-id
// failures land in the error map; a missing entity degrades the affected
// rows, it never fails the whole set.
func (c *Cache) ResolveAll(ctx context.Context, ids []string) (map[string]*Entity, map[string]error) {
	entities := make(map[string]*Entity, len(ids))
	failures := make(map[string]error)

	owned := make(map[string]*inflightFetch)
	shared := make(map[string]*inflightFetch)
	var misses []string

	c.mu.Lock()
	for _, id := range ids {
		if _, ok := entities[id]; ok {
			continue
		}
		if _, ok := owned[id]; ok {
			continue
		}
		if _, ok := shared[id]; ok {
			continue
		}
		if elem, ok := c.entries[id]; ok {
			c.order.MoveToFront(elem)
			entities[id] = elem.Value.(*cacheEntry).entity
			continue
		}
		if f, ok := c.inflight[id]; ok {
			shared[id] = f
			continue
		}
		f := &inflightFetch{done: make(chan struct{})}
		c.inflight[id] = f
		owned[id] = f
		misses = append(misses, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for start := 0; start < len(misses); start += BatchSize {
		end := start + BatchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.fetchChunk(ctx, chunk, owned)
		}()
	}
	wg.Wait()

	for id, f := range owned {
		if f.err != nil {
			failures[id] = f.err
		} else {
			entities[id] = f.entity
		}
	}
	for id, f := range shared {
		select {
		case <-f.done:
			if f.err != nil {
				failures[id] = f.err
			} else {
				entities[id] = f.entity
			}
		case <-ctx.Done():
			failures[id] = errors.WrapContext(ctx, "waiting for entity "+id)
		}
	}

	if len(failures) > 0 {
		c.logger.Warnw("some entities failed to resolve", "entities", len(failures))
	}
	return entities, failures
}

// fetchChunk runs one batched fetch under the concurrency limiter and the
// shared retry policy, then settles every id's in-flight record. Each
// attempt takes a fresh limiter slot. An id the service did not return is
// a per-id ErrNotFound, not a batch failure.
func (c *Cache) fetchChunk(ctx context.Context, chunk []string, owned map[string]*inflightFetch) {
	var fetched map[string]*Entity
	err := c.policy.Do(ctx, func(attempt int) error {
		select {
		case c.slots <- struct{}{}:
		case <-ctx.Done():
			return errors.WrapContext(ctx, "waiting for a fetch slot")
		}
		defer func() { <-c.slots }()

		var err error
		fetched, err = c.fetcher.Fetch(ctx, chunk)
		if err != nil && attempt > 1 {
			c.logger.Warnw("entity batch fetch attempt failed", "entities", len(chunk), "attempts", attempt, "error", err)
		}
		return err
	})

	c.mu.Lock()
	for _, id := range chunk {
		f := owned[id]
		switch {
		case err != nil:
			f.err = err
		case fetched[id] != nil:
			f.entity = fetched[id]
			c.insertLocked(id, f.entity)
		default:
			f.err = errors.Wrapf(errors.ErrNotFound, "%s", id)
		}
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	for _, id := range chunk {
		close(owned[id].done)
	}
}

// insertLocked adds the entity as most-recently-used and evicts from the
// cold end until the capacity bound holds again. Callers hold c.mu.
func (c *Cache) insertLocked(id string, entity *Entity) {
	if elem, ok := c.entries[id]; ok {
		// A later fetch replaces the whole entry, never patches it
		elem.Value.(*cacheEntry).entity = entity
		c.order.MoveToFront(elem)
		return
	}
	c.entries[id] = c.order.PushFront(&cacheEntry{id: id, entity: entity})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).id)
	}
}
