// ============================================================================
// backend/internal/store/store.go
// Document store contract shared by the mongo, firestore and memory backends
// ============================================================================

// Package store defines the document store the classroom core persists to,
// the typed repositories that convert documents at the boundary, and the
// retry and cache decorators applied to every backend.
package store

import (
	"context"
	"errors"
	"time"
)

// Reserved document fields
const (
	FieldID       = "_id"
	FieldRevision = "_rev"
)

var (
	// ErrNotFound is returned by point reads and mutations of a missing document
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a conditional write keeps losing to concurrent writers
	ErrConflict = errors.New("document revision conflict")
)

// Document is a record as the backend sees it. Typed entities never travel
// as Documents past the Records repositories.
type Document map[string]interface{}

// Filter is a conjunction of field equality conditions. A value wrapped with
// ArrayContains matches array fields holding that element.
type Filter map[string]interface{}

// ArrayContainsValue is the filter operand produced by ArrayContains
type ArrayContainsValue struct {
	Value interface{}
}

// ArrayContains matches documents whose array field contains v
func ArrayContains(v interface{}) ArrayContainsValue {
	return ArrayContainsValue{Value: v}
}

// MutateFunc receives the current document and returns its replacement.
// It may run more than once when a conditional write is retried, so it
// must not have side effects.
type MutateFunc func(current Document) (Document, error)

// ChangeKind classifies a change notification
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeDelete ChangeKind = "delete"
)

// Change is a single change notification from Watch. Doc is nil for deletes.
type Change struct {
	Collection string
	ID         string
	Kind       ChangeKind
	Doc        Document
}

// DocumentStore is key/collection addressed persistence with point reads,
// filtered queries, conditional writes and change subscriptions.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Put upserts the whole document; concurrent writers resolve last-write-wins.
	Put(ctx context.Context, collection, id string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	// Mutate applies fn as a read-modify-write guarded by the document revision.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error)
	// Watch streams changes to a collection until ctx is cancelled.
	Watch(ctx context.Context, collection string) (<-chan Change, error)
	Close(ctx context.Context) error
}

// ============================================================================
// Transient Errors
// ============================================================================

// TransientError marks a backend failure worth retrying
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// MarkTransient wraps err as retryable; nil stays nil
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was marked retryable by a backend
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// ============================================================================
// Document Helpers
// ============================================================================

// Clone copies a document deeply enough that slices and nested maps
// are not shared with the original.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = cloneValue(item)
		}
		return items
	case map[string]interface{}:
		return map[string]interface{}(Document(val).Clone())
	case Document:
		return val.Clone()
	default:
		return v
	}
}

// Revision returns the document revision; missing means 0
func (d Document) Revision() int64 {
	switch v := d[FieldRevision].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// timeValue stores zero times as absent fields
func timeValue(doc Document, key string, t time.Time) {
	if !t.IsZero() {
		doc[key] = t.UTC()
	}
}
