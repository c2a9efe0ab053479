// Package storage persists generated proofs, composite bundles and
// verification results in a prefixed key-value store. The following prefixes
// are used:
//   - 'zp/' for proofs
//   - 'zb/' for bundles
//   - 'vr/' for verification results
package storage

import (
	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	proofPrefix  = []byte("zp/")
	bundlePrefix = []byte("zb/")
	resultPrefix = []byte("vr/")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = db.ErrKeyNotFound

// Storage wraps the basic methods to persist and retrieve proof artifacts.
type Storage struct {
	db db.Database
}

// New creates a new Storage instance over the given database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}
