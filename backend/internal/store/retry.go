// ============================================================================
// backend/internal/store/retry.go
// Fixed-attempt retry decorator for transient backend failures
// ============================================================================

package store

import (
	"context"
	"log"
	"time"

	"classroom/backend/internal/metrics"
)

type retryStore struct {
	next     DocumentStore
	attempts int
	delay    time.Duration
}

// WithRetry retries operations that fail with a TransientError up to
// attempts times in total, pausing delay between tries. Other errors and
// the final transient error surface unchanged.
func WithRetry(next DocumentStore, attempts int, delay time.Duration) DocumentStore {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStore{next: next, attempts: attempts, delay: delay}
}

func (s *retryStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsTransient(err) || attempt >= s.attempts {
			return err
		}
		metrics.StoreRetries.WithLabelValues(op).Inc()
		log.Printf("WARN: store %s attempt %d/%d failed: %v", op, attempt, s.attempts, err)

		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *retryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := s.do(ctx, "get", func() (err error) {
		doc, err = s.next.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (s *retryStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	var docs []Document
	err := s.do(ctx, "find", func() (err error) {
		docs, err = s.next.Find(ctx, collection, filter)
		return err
	})
	return docs, err
}

func (s *retryStore) Put(ctx context.Context, collection, id string, doc Document) error {
	return s.do(ctx, "put", func() error {
		return s.next.Put(ctx, collection, id, doc)
	})
}

func (s *retryStore) Delete(ctx context.Context, collection, id string) error {
	return s.do(ctx, "delete", func() error {
		return s.next.Delete(ctx, collection, id)
	})
}

func (s *retryStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	var n int64
	err := s.do(ctx, "delete_many", func() (err error) {
		n, err = s.next.DeleteMany(ctx, collection, filter)
		return err
	})
	return n, err
}

func (s *retryStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error) {
	var doc Document
	err := s.do(ctx, "mutate", func() (err error) {
		doc, err = s.next.Mutate(ctx, collection, id, fn)
		return err
	})
	return doc, err
}

// Watch retries only while opening the subscription
func (s *retryStore) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	var ch <-chan Change
	err := s.do(ctx, "watch", func() (err error) {
		ch, err = s.next.Watch(ctx, collection)
		return err
	})
	return ch, err
}

func (s *retryStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
