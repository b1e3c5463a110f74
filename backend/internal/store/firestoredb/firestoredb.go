// ============================================================================
// backend/internal/store/firestoredb/firestoredb.go
// Firestore document store: transactional mutations and query snapshots
// ============================================================================

package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"classroom/backend/internal/store"
)

// Store maps each logical collection to a top-level Firestore collection
type Store struct {
	client  *firestore.Client
	timeout time.Duration
}

// Connect opens the Firestore client of a Firebase app
func Connect(ctx context.Context, app *firebase.App, queryTimeout time.Duration) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore client: %w", err)
	}
	log.Println("INFO: Connected to Firestore")
	return New(client, queryTimeout), nil
}

// New wraps an existing client
func New(client *firestore.Client, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Store{client: client, timeout: queryTimeout}
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.client.Collection(collection).Doc(id).Get(queryCtx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return fromSnapshot(snap), nil
}

func (s *Store) query(collection string, filter store.Filter) firestore.Query {
	q := s.client.Collection(collection).Query
	for field, value := range filter {
		if contains, ok := value.(store.ArrayContainsValue); ok {
			q = q.Where(field, "array-contains", contains.Value)
			continue
		}
		q = q.Where(field, "==", value)
	}
	return q
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	iter := s.query(collection, filter).Documents(queryCtx)
	defer iter.Stop()

	docs := make([]store.Document, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		docs = append(docs, fromSnapshot(snap))
	}
	// ordering client-side avoids a composite index per filter combination
	sort.Slice(docs, func(i, j int) bool {
		return fmt.Sprint(docs[i][store.FieldID]) < fmt.Sprint(docs[j][store.FieldID])
	})
	return docs, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data := toData(doc)
	data[store.FieldID] = id
	_, err := s.client.Collection(collection).Doc(id).Set(queryCtx, data)
	return classify(err)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Collection(collection).Doc(id).Delete(queryCtx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return classify(err)
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	iter := s.query(collection, filter).Documents(queryCtx)
	defer iter.Stop()

	var deleted int64
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, classify(err)
		}
		if _, err := snap.Ref.Delete(queryCtx); err != nil {
			return deleted, classify(err)
		}
		deleted++
	}
	return deleted, nil
}

// Mutate runs fn inside a Firestore transaction, which retries on contention
func (s *Store) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (store.Document, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref := s.client.Collection(collection).Doc(id)
	var result store.Document
	err := s.client.RunTransaction(queryCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		current := fromSnapshot(snap)
		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		data := toData(next)
		data[store.FieldID] = id
		data[store.FieldRevision] = current.Revision() + 1
		if err := tx.Set(ref, data); err != nil {
			return err
		}
		result = store.Document(data)
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.Aborted {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrConflict)
		}
		return nil, classify(err)
	}
	return result, nil
}

// Watch listens to collection snapshots. The initial snapshot lists existing
// documents and is skipped so only later changes are delivered.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan store.Change, error) {
	iter := s.client.Collection(collection).Snapshots(ctx)
	out := make(chan store.Change)

	go func() {
		defer close(out)
		defer iter.Stop()

		first := true
		for {
			qs, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					log.Printf("ERROR: firestore snapshot listener on %s ended: %v", collection, err)
				}
				return
			}
			if first {
				first = false
				continue
			}
			for _, ch := range qs.Changes {
				change := store.Change{Collection: collection, ID: ch.Doc.Ref.ID}
				if ch.Kind == firestore.DocumentRemoved {
					change.Kind = store.ChangeDelete
				} else {
					change.Kind = store.ChangeUpsert
					change.Doc = fromSnapshot(ch.Doc)
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

// ============================================================================
// Conversion Helpers
// ============================================================================

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return store.MarkTransient(err)
	}
	return err
}

func toData(doc store.Document) map[string]interface{} {
	data := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		data[k] = v
	}
	return data
}

func fromSnapshot(snap *firestore.DocumentSnapshot) store.Document {
	doc := store.Document(snap.Data())
	if _, ok := doc[store.FieldID]; !ok {
		doc[store.FieldID] = snap.Ref.ID
	}
	return doc
}
