package web3

import (
	"fmt"
	"math/big"

	"github.com/buildercred/zkcred/types"
)

// ProofCalldata holds a Groth16 proof in the layout expected by the on-chain
// verifier contract: affine curve points as uint256 pairs, with the G2 point
// coordinates swapped to the EVM pairing precompile ordering.
type ProofCalldata struct {
	A       [2]*big.Int
	B       [2][2]*big.Int
	C       [2]*big.Int
	Signals []*big.Int
}

// NewProofCalldata converts a proof from the decimal string encoding produced
// by the prover into verifier contract calldata. The third projective
// coordinate of each point is dropped.
func NewProofCalldata(proof types.Groth16Proof, publicSignals []string) (*ProofCalldata, error) {
	if len(proof.PiA) < 2 || len(proof.PiC) < 2 {
		return nil, fmt.Errorf("malformed proof: pi_a/pi_c need at least 2 coordinates")
	}
	if len(proof.PiB) < 2 || len(proof.PiB[0]) < 2 || len(proof.PiB[1]) < 2 {
		return nil, fmt.Errorf("malformed proof: pi_b needs a 2x2 coordinate block")
	}
	cd := &ProofCalldata{}
	var err error
	if cd.A[0], err = parseField(proof.PiA[0]); err != nil {
		return nil, err
	}
	if cd.A[1], err = parseField(proof.PiA[1]); err != nil {
		return nil, err
	}
	// the prover emits G2 coordinates as [x.a, x.b]; the pairing precompile
	// expects [x.b, x.a]
	for i := 0; i < 2; i++ {
		if cd.B[i][0], err = parseField(proof.PiB[i][1]); err != nil {
			return nil, err
		}
		if cd.B[i][1], err = parseField(proof.PiB[i][0]); err != nil {
			return nil, err
		}
	}
	if cd.C[0], err = parseField(proof.PiC[0]); err != nil {
		return nil, err
	}
	if cd.C[1], err = parseField(proof.PiC[1]); err != nil {
		return nil, err
	}
	cd.Signals = make([]*big.Int, len(publicSignals))
	for i, s := range publicSignals {
		if cd.Signals[i], err = parseField(s); err != nil {
			return nil, err
		}
	}
	return cd, nil
}

func parseField(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid field element %q", s)
	}
	return v, nil
}
