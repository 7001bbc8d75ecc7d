// Package testutil provides shared test helpers for vaults and ledgers.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/storage"
)

// TestLedger opens a ledger in a temporary directory and closes it on cleanup.
func TestLedger(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestVault creates an empty vault directory backed by storage.FS.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	return root, store
}

// WriteNote places a note in the vault, bypassing the engine.
func WriteNote(t *testing.T, store *storage.FS, path, content string) {
	t.Helper()
	if err := store.Write(path, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
