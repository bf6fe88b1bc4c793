package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/watcher"
)

var _ watcher.Handler = (*Indexer)(nil)

func TestFileChangedAndRemoved(t *testing.T) {
	idx, store := testIndexer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("Watched notes about the migration of wildebeest herds."), 0600); err != nil {
		t.Fatal(err)
	}

	idx.FileChanged(ctx, path)
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
	if got := store.byDocument(fileid.FileDocID(mustAbs(path))); len(got) == 0 {
		t.Fatal("expected chunks for the watched file")
	}

	idx.FileChanged(ctx, path)
	if store.calls != 1 {
		t.Errorf("unchanged file re-ingested, calls = %d", store.calls)
	}

	idx.FileRemoved(ctx, path)
	idx.FileChanged(ctx, path)
	if store.calls != 2 {
		t.Errorf("forgotten file should be ingested again, calls = %d", store.calls)
	}
}

func TestFileChanged_missingFileLogged(t *testing.T) {
	idx, store := testIndexer(t)
	idx.FileChanged(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}
