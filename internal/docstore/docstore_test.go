package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveProducesUniqueNames(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		path, name, err := store.Save([]byte("%PDF-1.4"))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if seen[name] {
			t.Fatalf("Save() produced duplicate name %q", name)
		}
		seen[name] = true

		if !strings.HasPrefix(name, "email-") || !strings.HasSuffix(name, ".pdf") {
			t.Errorf("name %q does not follow the email-<stamp>-<token>.pdf shape", name)
		}

		if _, err := os.Stat(path); err != nil {
			t.Errorf("saved document not on disk: %v", err)
		}
	}
}

func TestCleanupRemovesOnlyExpiredFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(dir, "email-old.pdf")
	if err := os.WriteFile(oldPath, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-25 * time.Hour)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatal(err)
	}

	freshPath := filepath.Join(dir, "email-fresh.pdf")
	if err := os.WriteFile(freshPath, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if removed != 1 {
		t.Errorf("Cleanup() removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expired document should be gone")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh document should survive: %v", err)
	}
}

func TestCleanupEmptyDir(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	removed, err := store.Cleanup(time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Cleanup() removed = %d, want 0", removed)
	}
}

func TestCleanupSkipsSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(dir, "keep")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(sub, stale, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if _, err := os.Stat(sub); err != nil {
		t.Errorf("subdirectory should be untouched: %v", err)
	}
}
