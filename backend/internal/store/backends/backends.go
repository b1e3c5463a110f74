// ============================================================================
// backend/internal/store/backends/backends.go
// Opens the configured document store and applies the retry and cache layers
// ============================================================================

package backends

import (
	"context"
	"fmt"
	"log"

	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/firestoredb"
	"classroom/backend/internal/store/memory"
	"classroom/backend/internal/store/mongodb"
)

// Open connects the backend named by cfg.StoreBackend. Retry wraps the raw
// backend and the cache sits outside it, so a cache miss is retried too.
func Open(ctx context.Context, cfg *shared.ServiceConfig) (store.DocumentStore, error) {
	raw, err := openRaw(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ds := store.WithRetry(raw, cfg.Store.RetryAttempts, cfg.Store.RetryDelay)
	ds = store.WithCache(ds, cfg.Store.CacheTTL)
	log.Printf("INFO: Store backend %s ready (retry=%d, cache ttl=%v)", cfg.StoreBackend, cfg.Store.RetryAttempts, cfg.Store.CacheTTL)
	return ds, nil
}

func openRaw(ctx context.Context, cfg *shared.ServiceConfig) (store.DocumentStore, error) {
	switch cfg.StoreBackend {
	case shared.StoreMongo:
		s, err := mongodb.Connect(&cfg.MongoDB, cfg.Store.QueryTimeout)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return s, nil

	case shared.StoreFirestore:
		app, err := shared.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return firestoredb.Connect(ctx, app, cfg.Store.QueryTimeout)

	case shared.StoreMemory:
		log.Printf("WARN: Using the in-memory store; data is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
