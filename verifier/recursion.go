package verifier

import (
	"encoding/json"
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"

	"github.com/buildercred/zkcred/types"
)

// ToRecursion converts a circom credential proof into the gnark recursion
// format so it can be verified inside an aggregation circuit, returning the
// recursion proof together with the circuit placeholders for the fixed
// verification key. The proof is verified against the verification key before
// conversion.
func ToRecursion(vkey []byte, proof *types.ZKProof) (
	*parser.GnarkRecursionProof, *parser.GnarkRecursionPlaceholders, error,
) {
	circomProof, pubSignals, err := parseProof(proof)
	if err != nil {
		return nil, nil, err
	}
	vkeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return nil, nil, fmt.Errorf("parse verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(circomProof, vkeyData, pubSignals)
	if err != nil {
		return nil, nil, fmt.Errorf("convert proof: %w", err)
	}
	if ok, err := parser.VerifyProof(gnarkProof); !ok || err != nil {
		return nil, nil, fmt.Errorf("proof verification failed: %v", err)
	}
	return parser.ConvertCircomToGnarkRecursion(circomProof, vkeyData, pubSignals, true)
}

// parseProof reencodes the domain proof into the snarkjs JSON layout the
// circom2gnark parser consumes.
func parseProof(proof *types.ZKProof) (*parser.CircomProof, []string, error) {
	if proof == nil {
		return nil, nil, fmt.Errorf("nil proof")
	}
	rawProof, err := json.Marshal(proof.Proof)
	if err != nil {
		return nil, nil, err
	}
	circomProof, err := parser.UnmarshalCircomProofJSON(rawProof)
	if err != nil {
		return nil, nil, fmt.Errorf("parse proof: %w", err)
	}
	rawSignals, err := json.Marshal(proof.PublicSignals)
	if err != nil {
		return nil, nil, err
	}
	pubSignals, err := parser.UnmarshalCircomPublicSignalsJSON(rawSignals)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public signals: %w", err)
	}
	return circomProof, pubSignals, nil
}
