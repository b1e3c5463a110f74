// ============================================================================
// backend/internal/store/mongodb/mongodb.go
// MongoDB document store: revision-guarded writes and change streams
// ============================================================================

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"classroom/backend/internal/metrics"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

// DefaultMutateAttempts bounds the optimistic read-modify-write loop
const DefaultMutateAttempts = 10

// Store persists documents in one MongoDB database, one collection per
// logical collection.
type Store struct {
	client         *mongo.Client
	db             *mongo.Database
	timeout        time.Duration
	mutateAttempts int
}

// Connect dials MongoDB with the shared connection settings
func Connect(cfg *shared.MongoConfig, queryTimeout time.Duration) (*Store, error) {
	client, db, err := shared.ConnectMongoDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(client, db, queryTimeout), nil
}

// New wraps an already connected database
func New(client *mongo.Client, db *mongo.Database, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Store{client: client, db: db, timeout: queryTimeout, mutateAttempts: DefaultMutateAttempts}
}

// EnsureIndexes creates the lookup indexes the repositories query by
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		shared.CollectionClasses: {
			{Keys: bson.D{{Key: "enrollment_code", Value: 1}}},
			{Keys: bson.D{{Key: "teacher_id", Value: 1}}},
			{Keys: bson.D{{Key: "student_ids", Value: 1}}},
		},
		shared.CollectionAssignments: {
			{Keys: bson.D{{Key: "class_id", Value: 1}}},
		},
		shared.CollectionGrades: {
			{Keys: bson.D{{Key: "class_id", Value: 1}, {Key: "student_id", Value: 1}}},
			{Keys: bson.D{{Key: "assignment_id", Value: 1}}},
		},
		shared.CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		shared.CollectionSessions: {
			{Keys: bson.D{{Key: "token", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	log.Println("INFO: MongoDB indexes ensured")
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var raw bson.M
	err := s.db.Collection(collection).FindOne(queryCtx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return fromBSON(raw), nil
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(queryCtx, toFilter(filter), opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(queryCtx)

	var raws []bson.M
	if err := cursor.All(queryCtx, &raws); err != nil {
		return nil, classify(err)
	}
	docs := make([]store.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	replacement := toBSON(doc)
	replacement["_id"] = id
	_, err := s.db.Collection(collection).ReplaceOne(queryCtx, bson.M{"_id": id}, replacement, options.Replace().SetUpsert(true))
	return classify(err)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.Collection(collection).DeleteOne(queryCtx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.Collection(collection).DeleteMany(queryCtx, toFilter(filter))
	if err != nil {
		return 0, classify(err)
	}
	return result.DeletedCount, nil
}

// Mutate reads the document, applies fn and writes the result only if the
// stored revision is still the one read. A lost race re-reads and retries.
func (s *Store) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (store.Document, error) {
	for attempt := 0; attempt < s.mutateAttempts; attempt++ {
		current, err := s.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		next, err := fn(current.Clone())
		if err != nil {
			return nil, err
		}

		rev := current.Revision()
		replacement := toBSON(next)
		replacement["_id"] = id
		replacement[store.FieldRevision] = rev + 1

		guard := bson.M{"_id": id, store.FieldRevision: rev}
		if _, ok := current[store.FieldRevision]; !ok {
			guard = bson.M{"_id": id, store.FieldRevision: bson.M{"$exists": false}}
		}

		queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := s.db.Collection(collection).ReplaceOne(queryCtx, guard, replacement)
		cancel()
		if err != nil {
			return nil, classify(err)
		}
		if result.MatchedCount == 1 {
			return fromBSON(replacement), nil
		}
		metrics.MutateConflicts.WithLabelValues(collection).Inc()
	}
	return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrConflict)
}

// changeEvent is the subset of a change stream event the store reads
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// Watch opens a change stream on the collection. Change streams require a
// replica set or sharded cluster.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan store.Change, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan store.Change)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				log.Printf("WARN: failed to decode change on %s: %v", collection, err)
				continue
			}
			change := store.Change{Collection: collection, ID: ev.DocumentKey.ID}
			switch ev.OperationType {
			case "insert", "update", "replace":
				change.Kind = store.ChangeUpsert
				change.Doc = fromBSON(ev.FullDocument)
			case "delete":
				change.Kind = store.ChangeDelete
			default:
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("ERROR: change stream on %s ended: %v", collection, err)
		}
	}()
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	return shared.DisconnectMongoDB(s.client)
}

// ============================================================================
// Conversion Helpers
// ============================================================================

// classify marks driver failures that are worth retrying
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return store.MarkTransient(err)
	}
	return err
}

func toFilter(filter store.Filter) bson.M {
	out := bson.M{}
	for field, value := range filter {
		// equality on an array field matches any element
		if contains, ok := value.(store.ArrayContainsValue); ok {
			out[field] = contains.Value
			continue
		}
		out[field] = value
	}
	return out
}

func toBSON(doc store.Document) bson.M {
	out := bson.M{}
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func fromBSON(raw bson.M) store.Document {
	doc := make(store.Document, len(raw))
	for k, v := range raw {
		doc[k] = fromBSONValue(v)
	}
	return doc
}

func fromBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.A:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = fromBSONValue(item)
		}
		return items
	case primitive.DateTime:
		return val.Time().UTC()
	case bson.M:
		return map[string]interface{}(fromBSON(val))
	case int32:
		return int64(val)
	default:
		return v
	}
}
