// Package artifacts provides the circuit artifact pipeline: a remote store
// client that downloads artifacts and verifies their integrity against the
// release manifest, and a persistent size-bounded cache with LRU eviction.
package artifacts

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/buildercred/zkcred/types"
)

// Manifest maps "<circuitId>.<ext>" artifact names to their expected sha256
// hex digests, as published by the artifact store for every release.
type Manifest map[string]string

// ParseManifest decodes a manifest JSON document.
func ParseManifest(data []byte) (Manifest, error) {
	m := Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing artifact manifest: %w", err)
	}
	return m, nil
}

// EntryName returns the manifest entry name for a circuit artifact.
func EntryName(circuit types.CircuitID, at types.ArtifactType) string {
	return fmt.Sprintf("%s.%s", circuit, at.Ext())
}

// Hash returns the expected sha256 digest for the given circuit artifact. It
// returns an error if the manifest has no entry for it or the digest is not
// valid hex.
func (m Manifest) Hash(circuit types.CircuitID, at types.ArtifactType) ([]byte, error) {
	name := EntryName(circuit, at)
	hexHash, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("manifest has no entry for %s", name)
	}
	hash, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, fmt.Errorf("manifest entry %s is not valid hex: %w", name, err)
	}
	return hash, nil
}

// IntegrityError is returned when downloaded artifact bytes do not hash to
// the digest declared by the manifest. Retrying the download is useless.
type IntegrityError struct {
	Name     string
	Expected []byte
	Got      []byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("artifact %s integrity check failed: expected %x, got %x",
		e.Name, e.Expected, e.Got)
}

// Is makes errors.Is(err, &IntegrityError{}) match any integrity error.
func (e *IntegrityError) Is(target error) bool {
	t, ok := target.(*IntegrityError)
	if !ok {
		return false
	}
	return t.Name == "" || (t.Name == e.Name && bytes.Equal(t.Expected, e.Expected))
}

// FetchError is returned when an artifact or the manifest cannot be retrieved
// from the store. The caller may retry.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("artifact fetch %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
