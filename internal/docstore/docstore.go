package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okibe/mailgram/internal/logger"
)

// Store keeps rendered documents in one flat directory until the
// retention sweep removes them. Names carry a timestamp plus a random
// token, so two messages rendered in the same second never collide.
type Store struct {
	dir string
	log logger.Logger
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}

	return &Store{
		dir: dir,
		log: logger.GetLogger(),
	}, nil
}

// Save writes the document and returns its path and bare filename.
func (s *Store) Save(pdf []byte) (string, string, error) {
	name := fmt.Sprintf("email-%s-%s.pdf",
		time.Now().UTC().Format("20060102-150405"),
		strings.Split(uuid.NewString(), "-")[0])

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, pdf, 0644); err != nil {
		return "", "", fmt.Errorf("write document: %w", err)
	}

	return path, name, nil
}

// Cleanup removes documents older than maxAge and returns how many
// went. Files that vanish underneath the sweep count as removed.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list documents dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if os.IsNotExist(err) {
			removed++
			continue
		}
		if err != nil {
			s.log.Warnw("could not stat document",
				"name", entry.Name(),
				"error", err)
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		err = os.Remove(filepath.Join(s.dir, entry.Name()))
		switch {
		case err == nil, os.IsNotExist(err):
			removed++
		default:
			s.log.Warnw("could not remove expired document",
				"name", entry.Name(),
				"error", err)
		}
	}

	return removed, nil
}
