// ============================================================================
// backend/internal/store/memory/memory.go
// In-process document store for tests and single-node development
// ============================================================================

package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"classroom/backend/internal/store"
)

// subscriberBuffer bounds how far a slow watcher may fall behind
const subscriberBuffer = 256

type subscriber struct {
	collection string
	ch         chan store.Change
}

// Store keeps every collection in mutex-guarded maps
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
	subscribers map[*subscriber]struct{}
	closed      bool
}

// New creates an empty store
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Document),
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]store.Document, 0)
	for _, doc := range s.collections[collection] {
		if Matches(doc, filter) {
			docs = append(docs, doc.Clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return fmt.Sprint(docs[i][store.FieldID]) < fmt.Sprint(docs[j][store.FieldID])
	})
	return docs, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := normalize(doc.Clone())
	stored[store.FieldID] = id
	s.put(collection, id, stored)
	return nil
}

func (s *Store) put(collection, id string, doc store.Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]store.Document)
	}
	s.collections[collection][id] = doc
	s.publish(store.Change{Collection: collection, ID: id, Kind: store.ChangeUpsert, Doc: doc})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	s.delete(collection, id)
	return nil
}

func (s *Store) delete(collection, id string) {
	delete(s.collections[collection], id)
	s.publish(store.Change{Collection: collection, ID: id, Kind: store.ChangeDelete})
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, doc := range s.collections[collection] {
		if Matches(doc, filter) {
			s.delete(collection, id)
			deleted++
		}
	}
	return deleted, nil
}

// Mutate runs fn under the write lock, so revision conflicts cannot occur
func (s *Store) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	stored := normalize(next.Clone())
	stored[store.FieldID] = id
	stored[store.FieldRevision] = current.Revision() + 1
	s.put(collection, id, stored)
	return stored.Clone(), nil
}

// Watch delivers changes made after the call. A watcher that falls more than
// subscriberBuffer changes behind misses changes rather than stalling writers.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan store.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store closed")
	}

	sub := &subscriber{collection: collection, ch: make(chan store.Change, subscriberBuffer)}
	s.subscribers[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[sub]; ok {
			delete(s.subscribers, sub)
			close(sub.ch)
		}
	}()
	return sub.ch, nil
}

// publish must be called with the write lock held
func (s *Store) publish(change store.Change) {
	for sub := range s.subscribers {
		if sub.collection != change.Collection {
			continue
		}
		c := change
		c.Doc = change.Doc.Clone()
		select {
		case sub.ch <- c:
		default:
			log.Printf("WARN: memory store watcher on %s is full, dropping change %s", sub.collection, change.ID)
		}
	}
}

// Close ends every subscription
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
	return nil
}

// normalize converts values to the representations real backends return,
// so code tested against memory sees the same shapes as production.
func normalize(doc store.Document) store.Document {
	for k, v := range doc {
		switch val := v.(type) {
		case int:
			doc[k] = int64(val)
		case int32:
			doc[k] = int64(val)
		case float32:
			doc[k] = float64(val)
		case time.Time:
			doc[k] = val.UTC()
		case []string:
			items := make([]interface{}, len(val))
			for i, item := range val {
				items[i] = item
			}
			doc[k] = items
		}
	}
	return doc
}

// Matches reports whether doc satisfies every condition of filter
func Matches(doc store.Document, filter store.Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if contains, isContains := want.(store.ArrayContainsValue); isContains {
			if !ok || !arrayContains(got, contains.Value) {
				return false
			}
			continue
		}
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func arrayContains(array, value interface{}) bool {
	switch items := array.(type) {
	case []interface{}:
		for _, item := range items {
			if valuesEqual(item, value) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if valuesEqual(item, value) {
				return true
			}
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
