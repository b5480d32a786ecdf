package allowlist

import (
	"errors"
	"fmt"

	"github.com/okibe/mailgram/internal/pattern"
	"github.com/okibe/mailgram/internal/settings"
)

const settingsKey = "allowlist"

var ErrInvalidPattern = errors.New("allowlist: invalid address pattern")

// Store decides which senders may enter the pipeline. Entries are full
// addresses or *@domain wildcards; an empty list accepts every sender.
// The list is re-read from the settings backend on every decision so a
// running daemon picks up administrative changes immediately.
type Store struct {
	settings settings.Store
}

func New(s settings.Store) *Store {
	return &Store{settings: s}
}

func (s *Store) Entries() ([]string, error) {
	var entries []string
	err := s.settings.Load(settingsKey, &entries)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// IsAllowed reports whether a lowercased sender address passes the
// list. With no entries saved, everything passes.
func (s *Store) IsAllowed(sender string) (bool, error) {
	entries, err := s.Entries()
	if err != nil {
		return false, err
	}

	if len(entries) == 0 {
		return true, nil
	}

	for _, entry := range entries {
		if pattern.Matches(entry, sender) {
			return true, nil
		}
	}

	return false, nil
}

// Add appends an entry. Duplicates are rejected so an operator notices
// a no-op instead of growing the list silently.
func (s *Store) Add(entry string) error {
	if !pattern.Valid(entry) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, entry)
	}

	entries, err := s.Entries()
	if err != nil {
		return err
	}

	for _, existing := range entries {
		if existing == entry {
			return fmt.Errorf("allowlist: %q is already present", entry)
		}
	}

	return s.settings.Save(settingsKey, append(entries, entry))
}

// Remove deletes an entry, reporting whether it was present.
func (s *Store) Remove(entry string) (bool, error) {
	entries, err := s.Entries()
	if err != nil {
		return false, err
	}

	kept := entries[:0]
	removed := false
	for _, existing := range entries {
		if existing == entry {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}

	if !removed {
		return false, nil
	}

	return true, s.settings.Save(settingsKey, kept)
}
