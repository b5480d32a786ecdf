package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps every record as <dir>/<key>.json. Saves go through a
// temp file and an atomic rename so a crash mid-write never leaves a
// truncated record behind.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Load(key string, v interface{}) error {
	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read settings %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode settings %q: %w", key, err)
	}

	return nil
}

func (s *FileStore) Save(key string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings %q: %w", key, err)
	}

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("write settings %q: %w", key, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace settings %q: %w", key, err)
	}

	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
