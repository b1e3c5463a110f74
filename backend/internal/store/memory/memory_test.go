package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classroom/backend/internal/store"
)

func TestPutGetClones(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := store.Document{"name": "Algebra", "student_ids": []string{"s1"}}
	if err := s.Put(ctx, "classes", "c1", doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	doc["name"] = "changed after put"

	got, err := s.Get(ctx, "classes", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["name"] != "Algebra" || got[store.FieldID] != "c1" {
		t.Errorf("Get = %v", got)
	}
	ids, ok := got["student_ids"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("student_ids = %#v, want normalized []interface{}{\"s1\"}", got["student_ids"])
	}

	got["name"] = "changed after get"
	again, _ := s.Get(ctx, "classes", "c1")
	if again["name"] != "Algebra" {
		t.Error("Get returned a shared document")
	}

	if _, err := s.Get(ctx, "classes", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}
}

func TestFindFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put(ctx, "grades", "b", store.Document{"class_id": "c1", "points": 10, "tags": []string{"x"}})
	s.Put(ctx, "grades", "a", store.Document{"class_id": "c1", "points": int64(5), "tags": []string{"y"}})
	s.Put(ctx, "grades", "c", store.Document{"class_id": "c2", "points": 10.0})

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{name: "all", filter: nil, want: []string{"a", "b", "c"}},
		{name: "equality", filter: store.Filter{"class_id": "c1"}, want: []string{"a", "b"}},
		{name: "numeric across types", filter: store.Filter{"points": 10}, want: []string{"b", "c"}},
		{name: "array contains", filter: store.Filter{"tags": store.ArrayContains("y")}, want: []string{"a"}},
		{name: "missing field", filter: store.Filter{"nope": "x"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "grades", tt.filter)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if len(docs) != len(tt.want) {
				t.Fatalf("Find returned %d docs, want %d", len(docs), len(tt.want))
			}
			for i, doc := range docs {
				if doc[store.FieldID] != tt.want[i] {
					t.Errorf("docs[%d] = %v, want %s", i, doc[store.FieldID], tt.want[i])
				}
			}
		})
	}
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put(ctx, "grades", "1", store.Document{"student_id": "s1"})
	s.Put(ctx, "grades", "2", store.Document{"student_id": "s1"})
	s.Put(ctx, "grades", "3", store.Document{"student_id": "s2"})

	n, err := s.DeleteMany(ctx, "grades", store.Filter{"student_id": "s1"})
	if err != nil || n != 2 {
		t.Fatalf("DeleteMany = %d, %v, want 2", n, err)
	}
	left, _ := s.Find(ctx, "grades", nil)
	if len(left) != 1 {
		t.Errorf("%d documents left, want 1", len(left))
	}
	if err := s.Delete(ctx, "grades", "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete missing err = %v", err)
	}
}

func TestMutateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put(ctx, "classes", "c1", store.Document{"count": int64(0)})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, "classes", "c1", func(cur store.Document) (store.Document, error) {
				n, _ := cur["count"].(int64)
				cur["count"] = n + 1
				return cur, nil
			})
			if err != nil {
				t.Errorf("Mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "classes", "c1")
	if got["count"] != int64(50) || got.Revision() != 50 {
		t.Errorf("count=%v revision=%d, want 50/50", got["count"], got.Revision())
	}

	boom := errors.New("boom")
	if _, err := s.Mutate(ctx, "classes", "c1", func(store.Document) (store.Document, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Mutate err = %v, want boom", err)
	}
	if _, err := s.Mutate(ctx, "classes", "missing", func(d store.Document) (store.Document, error) { return d, nil }); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Mutate missing err = %v", err)
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	changes, err := s.Watch(ctx, "grades")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	s.Put(ctx, "classes", "ignored", store.Document{})
	s.Put(ctx, "grades", "g1", store.Document{"status": "graded"})
	s.Delete(ctx, "grades", "g1")

	want := []store.ChangeKind{store.ChangeUpsert, store.ChangeDelete}
	for _, kind := range want {
		select {
		case ch := <-changes:
			if ch.Kind != kind || ch.ID != "g1" || ch.Collection != "grades" {
				t.Errorf("change = %+v, want %s g1", ch, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			t.Error("unexpected change after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
