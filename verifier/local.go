// Package verifier checks generated credential proofs, either locally against
// the circuit verification key or on-chain through a verifier contract.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/prover"
	"github.com/buildercred/zkcred/types"
)

// Local verifies proofs against the circuit verification key using the same
// execution bridge that produced them.
type Local struct {
	cache    *artifacts.Cache
	store    *artifacts.Store
	bridge   *prover.Bridge
	versions map[types.CircuitID]string
}

// NewLocal creates a local verifier. versions maps circuits to their current
// artifact version, matching the generator's configuration.
func NewLocal(cache *artifacts.Cache, store *artifacts.Store, bridge *prover.Bridge,
	versions map[types.CircuitID]string,
) *Local {
	return &Local{cache: cache, store: store, bridge: bridge, versions: versions}
}

// Verify checks the proof against its circuit's verification key. An invalid
// proof is reported through the result, not the error: the error return is
// reserved for infrastructure failures such as an unavailable verification
// key. On a valid result the proof transitions to verified and VerifiedAt is
// stamped; an invalid or expired proof is left untouched.
func (v *Local) Verify(ctx context.Context, proof *types.ZKProof) (*types.VerificationResult, error) {
	if proof == nil {
		return nil, fmt.Errorf("nil proof")
	}
	now := time.Now()
	result := &types.VerificationResult{
		Timestamp: now,
		Method:    types.VerificationLocal,
	}
	if proof.Expired(now) {
		result.Error = "proof expired"
		return result, nil
	}
	vkey, err := v.verificationKey(ctx, proof.CircuitID)
	if err != nil {
		return nil, err
	}
	if err := v.bridge.Verify(ctx, proof.CircuitID,
		prover.FromDomain(proof.Proof, proof.PublicSignals), vkey); err != nil {
		log.Debugw("proof rejected", "circuit", string(proof.CircuitID),
			"id", proof.ID, "err", err.Error())
		result.Error = err.Error()
		return result, nil
	}
	result.Valid = true
	proof.Status = types.ProofStatusVerified
	verifiedAt := now
	proof.VerifiedAt = &verifiedAt
	return result, nil
}

// verificationKey returns the circuit's verification key from the cache,
// fetching and caching it on a miss.
func (v *Local) verificationKey(ctx context.Context, circuit types.CircuitID) ([]byte, error) {
	version := v.version(circuit)
	if vkey, ok := v.cache.GetVerificationKey(circuit, version); ok {
		return vkey, nil
	}
	vkey, err := v.store.Fetch(ctx, circuit, types.ArtifactVerificationKey, nil)
	if err != nil {
		return nil, fmt.Errorf("verification key for %s: %w", circuit, err)
	}
	v.cache.SetVerificationKey(circuit, version, vkey)
	return vkey, nil
}

func (v *Local) version(circuit types.CircuitID) string {
	if ver, ok := v.versions[circuit]; ok {
		return ver
	}
	return "v1"
}
