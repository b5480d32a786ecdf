package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/okibe/mailgram/internal/pattern"
	"github.com/okibe/mailgram/internal/settings"
)

const settingsKey = "routing"

var ErrInvalidPattern = errors.New("routing: invalid address pattern")

// Config is the persisted routing table. Topic ids address forum topics
// inside the destination chat; zero means "no topic".
type Config struct {
	DefaultTopic  int64            `json:"defaultTopic"`
	TopicMappings map[string]int64 `json:"topicMappings"`
}

// Store resolves which topic a sender's documents land in. Like the
// allow-list it re-reads the settings backend on every call.
type Store struct {
	settings settings.Store
}

func New(s settings.Store) *Store {
	return &Store{settings: s}
}

func (s *Store) Load() (Config, error) {
	var cfg Config
	err := s.settings.Load(settingsKey, &cfg)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		return Config{}, err
	}

	if cfg.TopicMappings == nil {
		cfg.TopicMappings = map[string]int64{}
	}

	return cfg, nil
}

// Resolve returns the topic for a lowercased sender: an exact mapping
// wins, then a *@domain mapping, then the default. Zero means the
// message goes to the chat itself.
func (s *Store) Resolve(sender string) (int64, error) {
	cfg, err := s.Load()
	if err != nil {
		return 0, err
	}

	if topic, ok := cfg.TopicMappings[sender]; ok {
		return topic, nil
	}

	// map iteration order is random, so pick wildcards deterministically
	wildcards := make([]string, 0, len(cfg.TopicMappings))
	for p := range cfg.TopicMappings {
		if strings.HasPrefix(p, "*@") {
			wildcards = append(wildcards, p)
		}
	}
	sort.Strings(wildcards)

	for _, p := range wildcards {
		if pattern.Matches(p, sender) {
			return cfg.TopicMappings[p], nil
		}
	}

	return cfg.DefaultTopic, nil
}

func (s *Store) SetMapping(p string, topic int64) error {
	if !pattern.Valid(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
	}
	if topic <= 0 {
		return fmt.Errorf("routing: topic id must be positive, got %d", topic)
	}

	cfg, err := s.Load()
	if err != nil {
		return err
	}

	cfg.TopicMappings[p] = topic

	return s.settings.Save(settingsKey, cfg)
}

// RemoveMapping deletes a mapping, reporting whether it existed.
func (s *Store) RemoveMapping(p string) (bool, error) {
	cfg, err := s.Load()
	if err != nil {
		return false, err
	}

	if _, ok := cfg.TopicMappings[p]; !ok {
		return false, nil
	}

	delete(cfg.TopicMappings, p)

	return true, s.settings.Save(settingsKey, cfg)
}

// SetDefault changes the fallback topic; zero clears it.
func (s *Store) SetDefault(topic int64) error {
	if topic < 0 {
		return fmt.Errorf("routing: topic id cannot be negative, got %d", topic)
	}

	cfg, err := s.Load()
	if err != nil {
		return err
	}

	cfg.DefaultTopic = topic

	return s.settings.Save(settingsKey, cfg)
}
