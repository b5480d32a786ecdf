package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := record{Name: "inbox", Count: 3}
	if err := store.Save("state", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got record
	if err := store.Load("state", &got); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestFileStoreLoadMissingKey(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var got record
	if err := store.Load("never-saved", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreSaveReplacesWholeRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Save("state", record{Name: "first", Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save("state", record{Name: "second"}); err != nil {
		t.Fatal(err)
	}

	var got record
	if err := store.Load("state", &got); err != nil {
		t.Fatal(err)
	}

	if got.Name != "second" || got.Count != 0 {
		t.Errorf("Load() = %+v, want the second record only", got)
	}

	// the temp file must not survive a completed save
	if _, err := os.Stat(filepath.Join(dir, "state.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file still present after Save, stat err = %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save("state", record{Name: "durable", Count: 7}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	var got record
	if err := reopened.Load("state", &got); err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}

	if got.Name != "durable" || got.Count != 7 {
		t.Errorf("Load() after reopen = %+v", got)
	}
}
