// Package inputs maps credential claims to the field-element input vector the
// circuits consume. The encoding is deterministic: the same claims always
// produce the same witness inputs, so proofs are reproducible.
package inputs

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/buildercred/zkcred/types"
	"github.com/buildercred/zkcred/util"
)

// CredentialClaims are the private claims behind a credential proof. Subject
// is the builder's account address, Secret the blinding value known only to
// the subject, and Values the circuit-specific claim magnitudes (grant counts,
// attestation weights) as decimal strings.
type CredentialClaims struct {
	Subject  types.HexBytes `json:"subject"`
	Secret   types.HexBytes `json:"secret"`
	Values   []string       `json:"values"`
	IssuedAt int64          `json:"issuedAt"`
}

// Encode builds the JSON witness input map for the circuit. The map carries
// the poseidon commitment over (subject, circuit, secret), the nullifier over
// (commitment, secret), the claim values reduced to the scalar field, and the
// issuance timestamp.
func Encode(circuit types.CircuitID, claims *CredentialClaims) ([]byte, error) {
	if !circuit.Valid() {
		return nil, fmt.Errorf("unknown circuit %q", circuit)
	}
	if claims == nil {
		return nil, fmt.Errorf("nil claims")
	}
	if len(claims.Subject) == 0 || len(claims.Secret) == 0 {
		return nil, fmt.Errorf("claims need subject and secret")
	}
	commitment, nullifier, err := CommitmentAndNullifier(circuit, claims.Subject, claims.Secret)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(claims.Values))
	for i, v := range claims.Values {
		b, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("invalid claim value %q", v)
		}
		values[i] = util.BigToFF(b).String()
	}
	signals := map[string]any{
		"subject":    util.BigToFF(new(big.Int).SetBytes(claims.Subject)).String(),
		"commitment": commitment.String(),
		"nullifier":  nullifier.String(),
		"values":     values,
		"issuedAt":   fmt.Sprint(claims.IssuedAt),
	}
	return json.Marshal(signals)
}

// CommitmentAndNullifier derives the poseidon commitment over the subject,
// the circuit tag and the secret, and the nullifier over the commitment and
// the secret.
func CommitmentAndNullifier(circuit types.CircuitID, subject, secret []byte) (*big.Int, *big.Int, error) {
	commitment, err := poseidon.Hash([]*big.Int{
		util.BigToFF(new(big.Int).SetBytes(subject)),
		util.BigToFF(new(big.Int).SetBytes([]byte(circuit))),
		util.BigToFF(new(big.Int).SetBytes(secret)),
	})
	if err != nil {
		return nil, nil, err
	}
	nullifier, err := poseidon.Hash([]*big.Int{
		commitment,
		util.BigToFF(new(big.Int).SetBytes(secret)),
	})
	if err != nil {
		return nil, nil, err
	}
	return commitment, nullifier, nil
}
