// ============================================================================
// backend/internal/store/cache.go
// TTL point-read cache decorator with collapsed concurrent misses
// ============================================================================

package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"classroom/backend/internal/metrics"
)

type cacheEntry struct {
	doc     Document
	expires time.Time
}

type cacheStore struct {
	next  DocumentStore
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
	// generation is bumped per collection on every write so a load that
	// started before the write cannot repopulate the cache with stale data
	generation map[string]uint64
}

// WithCache caches Get results for ttl. Concurrent misses for the same
// document share one backend read. Writes through this store invalidate the
// affected entries; writes from other processes are visible after ttl.
// A non-positive ttl returns next unchanged.
func WithCache(next DocumentStore, ttl time.Duration) DocumentStore {
	return newCacheStore(next, ttl, time.Now)
}

func newCacheStore(next DocumentStore, ttl time.Duration, now func() time.Time) DocumentStore {
	if ttl <= 0 {
		return next
	}
	return &cacheStore{
		next:       next,
		ttl:        ttl,
		now:        now,
		entries:    make(map[string]cacheEntry),
		generation: make(map[string]uint64),
	}
}

func cacheKey(collection, id string) string {
	return collection + "/" + id
}

func (s *cacheStore) Get(ctx context.Context, collection, id string) (Document, error) {
	key := cacheKey(collection, id)

	s.mu.Lock()
	entry, ok := s.entries[key]
	gen := s.generation[collection]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return entry.doc.Clone(), nil
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		doc, err := s.next.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.generation[collection] == gen {
			s.entries[key] = cacheEntry{doc: doc.Clone(), expires: s.now().Add(s.ttl)}
		}
		s.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Document).Clone(), nil
}

func (s *cacheStore) invalidate(collection, id string) {
	key := cacheKey(collection, id)
	s.mu.Lock()
	delete(s.entries, key)
	s.generation[collection]++
	s.mu.Unlock()
	s.group.Forget(key)
}

func (s *cacheStore) invalidateCollection(collection string) {
	prefix := collection + "/"
	s.mu.Lock()
	for key := range s.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.entries, key)
		}
	}
	s.generation[collection]++
	s.mu.Unlock()
}

func (s *cacheStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	return s.next.Find(ctx, collection, filter)
}

func (s *cacheStore) Put(ctx context.Context, collection, id string, doc Document) error {
	defer s.invalidate(collection, id)
	return s.next.Put(ctx, collection, id, doc)
}

func (s *cacheStore) Delete(ctx context.Context, collection, id string) error {
	defer s.invalidate(collection, id)
	return s.next.Delete(ctx, collection, id)
}

func (s *cacheStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	defer s.invalidateCollection(collection)
	return s.next.DeleteMany(ctx, collection, filter)
}

func (s *cacheStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error) {
	defer s.invalidate(collection, id)
	return s.next.Mutate(ctx, collection, id, fn)
}

func (s *cacheStore) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	return s.next.Watch(ctx, collection)
}

func (s *cacheStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
