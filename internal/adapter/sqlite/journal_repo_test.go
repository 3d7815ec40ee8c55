package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	state := domain.ResumeState{Downloaded: 512, FilePath: "/dl/a.zip", FileName: "a.zip", Total: 2048}
	if err := store.Save(ctx, "https://example.com/a.zip", "/dl", state); err != nil {
		t.Fatalf("Save() err = %v", err)
	}

	got, err := store.Get(ctx, "https://example.com/a.zip", "/dl")
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if *got != state {
		t.Errorf("Get() = %+v, want %+v", *got, state)
	}

	state.Downloaded = 1024
	if err := store.Save(ctx, "https://example.com/a.zip", "/dl", state); err != nil {
		t.Fatalf("Save() upsert err = %v", err)
	}
	got, _ = store.Get(ctx, "https://example.com/a.zip", "/dl")
	if got.Downloaded != 1024 {
		t.Errorf("upsert Downloaded = %d, want 1024", got.Downloaded)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "https://example.com/none", "/dl")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	keys := []struct{ url, dir string }{
		{"https://example.com/1", "/a"},
		{"https://example.com/1", "/b"},
		{"https://example.com/2", "/a"},
	}
	for i, k := range keys {
		st := domain.ResumeState{Downloaded: int64(i), FilePath: k.dir + "/f", Total: domain.UnknownSize}
		if err := store.Save(ctx, k.url, k.dir, st); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() err = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if e.State.Total != domain.UnknownSize {
			t.Errorf("entry %s total = %d, want unknown", e.URL, e.State.Total)
		}
		if e.UpdatedAt.IsZero() {
			t.Errorf("entry %s has no update time", e.URL)
		}
	}

	if err := store.Delete(ctx, "https://example.com/1", "/a"); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if err := store.Delete(ctx, "https://example.com/1", "/a"); err != nil {
		t.Errorf("Delete() of missing entry err = %v", err)
	}

	entries, _ = store.List(ctx)
	if len(entries) != 2 {
		t.Errorf("List() after delete = %d entries, want 2", len(entries))
	}
}
