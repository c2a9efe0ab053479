package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/types"
)

// SetProof stores a proof keyed by its ID, overwriting any previous version.
func (s *Storage) SetProof(proof *types.ZKProof) error {
	if proof == nil || proof.ID == "" {
		return fmt.Errorf("proof without id")
	}
	return s.setArtifact(proofPrefix, []byte(proof.ID), proof)
}

// Proof retrieves a proof by ID. It returns ErrNotFound if it does not exist.
func (s *Storage) Proof(id string) (*types.ZKProof, error) {
	proof := &types.ZKProof{}
	if err := s.getArtifact(proofPrefix, []byte(id), proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// DeleteProof removes a proof and its verification result, if any.
func (s *Storage) DeleteProof(id string) error {
	if err := s.deleteArtifact(proofPrefix, []byte(id)); err != nil {
		return err
	}
	// verification results share the proof key
	if err := s.deleteArtifact(resultPrefix, []byte(id)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ListProofs returns the IDs of all stored proofs.
func (s *Storage) ListProofs() ([]string, error) {
	keys, err := s.listKeys(proofPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = string(k)
	}
	return ids, nil
}

// SetVerificationResult records the outcome of verifying the proof and, when
// the result is valid, persists the proof's transition to verified.
func (s *Storage) SetVerificationResult(id string, result *types.VerificationResult) error {
	if result == nil {
		return fmt.Errorf("nil verification result")
	}
	proof, err := s.Proof(id)
	if err != nil {
		return err
	}
	if result.Valid {
		proof.Status = types.ProofStatusVerified
		if proof.VerifiedAt == nil {
			verifiedAt := result.Timestamp
			proof.VerifiedAt = &verifiedAt
		}
		if err := s.SetProof(proof); err != nil {
			return err
		}
	}
	return s.setArtifact(resultPrefix, []byte(id), result)
}

// VerificationResult retrieves the last verification result recorded for the
// proof. It returns ErrNotFound if the proof was never verified.
func (s *Storage) VerificationResult(id string) (*types.VerificationResult, error) {
	result := &types.VerificationResult{}
	if err := s.getArtifact(resultPrefix, []byte(id), result); err != nil {
		return nil, err
	}
	return result, nil
}

// PruneExpired scans the stored proofs and marks the ones past their expiry
// as expired. It returns the number of proofs transitioned.
func (s *Storage) PruneExpired(now time.Time) (int, error) {
	ids, err := s.ListProofs()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range ids {
		proof, err := s.Proof(id)
		if err != nil {
			return pruned, err
		}
		if proof.Status == types.ProofStatusExpired || !proof.Expired(now) {
			continue
		}
		proof.Status = types.ProofStatusExpired
		if err := s.SetProof(proof); err != nil {
			return pruned, err
		}
		pruned++
	}
	if pruned > 0 {
		log.Infow("expired proofs pruned", "count", pruned)
	}
	return pruned, nil
}
