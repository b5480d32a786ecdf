package settings

import "errors"

// ErrNotFound reports that no record has been saved under a key yet.
// Callers treat it as "start from the default" rather than a failure.
var ErrNotFound = errors.New("settings: record not found")

// Store persists one JSON document per key. Writes replace the whole
// record; concurrent writers follow last-write-wins.
type Store interface {
	Load(key string, v interface{}) error
	Save(key string, v interface{}) error
}
