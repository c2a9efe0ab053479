package storage

import (
	"fmt"

	"github.com/buildercred/zkcred/types"
)

// SetBundle stores a composite bundle and each of its proofs. Proofs are
// stored individually too so they can be verified and pruned on their own.
func (s *Storage) SetBundle(bundle *types.ProofBundle) error {
	if bundle == nil || bundle.ID == "" {
		return fmt.Errorf("bundle without id")
	}
	for _, proof := range bundle.Proofs {
		if err := s.SetProof(proof); err != nil {
			return fmt.Errorf("store bundle proof %s: %w", proof.ID, err)
		}
	}
	return s.setArtifact(bundlePrefix, []byte(bundle.ID), bundle)
}

// Bundle retrieves a bundle by ID. It returns ErrNotFound if it does not
// exist.
func (s *Storage) Bundle(id string) (*types.ProofBundle, error) {
	bundle := &types.ProofBundle{}
	if err := s.getArtifact(bundlePrefix, []byte(id), bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ListBundles returns the IDs of all stored bundles.
func (s *Storage) ListBundles() ([]string, error) {
	keys, err := s.listKeys(bundlePrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = string(k)
	}
	return ids, nil
}
