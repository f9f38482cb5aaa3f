package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

func TestNewMemoryStorageIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()

	docs, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty store, got %d documents", len(docs))
	}
	if _, err := store.Get("missing.yml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutAndGetReturnDefensiveCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	tree := map[string]any{"Enabled": true, "Include": []any{"app/**"}}
	loadedAt := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Put(Document{Source: ".rubocop.yml", Tree: tree, LoadedAt: loadedAt}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mutating the caller's tree must not leak into the store
	tree["Enabled"] = false

	got, err := store.Get(".rubocop.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"Enabled": true, "Include": []any{"app/**"}}
	if !yamlloader.Equal(got.Tree, want) {
		t.Fatalf("expected %v, got %v", want, got.Tree)
	}
	if !got.LoadedAt.Equal(loadedAt) {
		t.Fatalf("expected loadedAt %s, got %s", loadedAt, got.LoadedAt)
	}

	got.Tree.(map[string]any)["Include"].([]any)[0] = "changed"
	again, err := store.Get(".rubocop.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !yamlloader.Equal(again.Tree, want) {
		t.Fatalf("expected defensive copy, got %v", again.Tree)
	}
}

func TestPutRejectsEmptySource(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	for _, source := range []string{"", "   "} {
		if err := store.Put(Document{Source: source}); !errors.Is(err, ErrInvalidSource) {
			t.Fatalf("expected ErrInvalidSource for %q, got %v", source, err)
		}
	}
}

func TestListIsSortedAndDeleteRemoves(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	for _, source := range []string{"b.yml", "a.yml", "c.yml"} {
		if err := store.Put(Document{Source: source, Tree: source}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := store.Delete("b.yml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete("b.yml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	docs, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].Source != "a.yml" || docs[1].Source != "c.yml" {
		t.Fatalf("unexpected listing: %+v", docs)
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			doc := Document{
				Source: fmt.Sprintf("config_%d.yml", offset%4),
				Tree:   map[string]any{"n": offset},
			}
			if err := store.Put(doc); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := store.List(); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}

	wg.Wait()

	docs, err := store.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(docs))
	}
}
