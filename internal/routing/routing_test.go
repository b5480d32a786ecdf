package routing

import (
	"errors"
	"testing"

	"github.com/okibe/mailgram/internal/settings"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	backend, err := settings.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	return New(backend)
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.SetMapping("alice@example.com", 11); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMapping("*@example.com", 22); err != nil {
		t.Fatal(err)
	}
	if err := store.SetDefault(33); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		sender string
		want   int64
	}{
		{"alice@example.com", 11}, // exact beats wildcard
		{"bob@example.com", 22},   // wildcard beats default
		{"carol@other.org", 33},   // default catches the rest
	}

	for _, tc := range tests {
		got, err := store.Resolve(tc.sender)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %d, want %d", tc.sender, got, tc.want)
		}
	}
}

func TestResolveWithoutAnyRule(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	got, err := store.Resolve("anyone@example.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != 0 {
		t.Errorf("Resolve() = %d, want 0 when nothing is configured", got)
	}
}

func TestWildcardDomainIgnoresCase(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.SetMapping("*@Example.COM", 7); err != nil {
		t.Fatal(err)
	}

	got, err := store.Resolve("dave@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("Resolve() = %d, want 7", got)
	}
}

func TestSetMappingValidation(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	if err := store.SetMapping("nonsense", 5); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("SetMapping(invalid pattern) error = %v, want ErrInvalidPattern", err)
	}

	if err := store.SetMapping("alice@example.com", 0); err == nil {
		t.Error("SetMapping with topic 0 should fail")
	}
}

func TestRemoveMapping(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.SetMapping("alice@example.com", 11); err != nil {
		t.Fatal(err)
	}

	removed, err := store.RemoveMapping("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("RemoveMapping() should report a present mapping")
	}

	removed, err = store.RemoveMapping("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("RemoveMapping() should report a missing mapping")
	}

	got, err := store.Resolve("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Resolve() after removal = %d, want 0", got)
	}
}

func TestSetDefaultZeroClears(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.SetDefault(9); err != nil {
		t.Fatal(err)
	}
	if err := store.SetDefault(0); err != nil {
		t.Fatal(err)
	}

	got, err := store.Resolve("anyone@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Resolve() = %d, want 0 after clearing the default", got)
	}
}
