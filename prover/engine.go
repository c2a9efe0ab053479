// Package prover runs Groth16 proving and verification for pre-compiled
// circom circuits. The Engine does the actual cryptographic work through
// rapidsnark; the Bridge decides where it runs (dedicated worker goroutine or
// the caller's goroutine) and normalizes both paths into one call with
// progress reporting and cancellation.
package prover

import (
	"encoding/json"
	"fmt"

	"github.com/iden3/go-rapidsnark/prover"
	snarktypes "github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"github.com/iden3/go-rapidsnark/witness"

	"github.com/buildercred/zkcred/types"
)

// Artifacts carries the three compiled circuit artifacts a proving or
// verification call needs.
type Artifacts struct {
	WitnessBinary   []byte
	ProvingKey      []byte
	VerificationKey json.RawMessage
}

// Engine computes Groth16 proofs and verifies them. onProgress, when not nil,
// receives coarse checkpoint percentages in [0, 100].
type Engine interface {
	Prove(inputs []byte, artifacts Artifacts, onProgress func(percent int)) (*snarktypes.ZKProof, error)
	Verify(proof *snarktypes.ZKProof, vkey []byte) error
}

// rapidsnarkEngine is the production engine: witness calculation from the
// circuit wasm binary and Groth16 proving from the zkey, both via rapidsnark.
type rapidsnarkEngine struct{}

// NewEngine returns the rapidsnark-backed engine.
func NewEngine() Engine {
	return rapidsnarkEngine{}
}

func (rapidsnarkEngine) Prove(inputs []byte, artifacts Artifacts, onProgress func(int)) (*snarktypes.ZKProof, error) {
	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	report(0)
	parsedInputs, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("error parsing witness inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(artifacts.WitnessBinary, true)
	if err != nil {
		return nil, fmt.Errorf("error instantiating witness calculator: %w", err)
	}
	report(15)
	wtns, err := calc.CalculateWTNSBin(parsedInputs, true)
	if err != nil {
		return nil, fmt.Errorf("error calculating witness: %w", err)
	}
	report(60)
	proofStr, pubStr, err := prover.Groth16ProverRaw(artifacts.ProvingKey, wtns)
	if err != nil {
		return nil, fmt.Errorf("error generating groth16 proof: %w", err)
	}
	proofData := &snarktypes.ProofData{}
	if err := json.Unmarshal([]byte(proofStr), proofData); err != nil {
		return nil, fmt.Errorf("error decoding proof: %w", err)
	}
	var pubSignals []string
	if err := json.Unmarshal([]byte(pubStr), &pubSignals); err != nil {
		return nil, fmt.Errorf("error decoding public signals: %w", err)
	}
	report(100)
	return &snarktypes.ZKProof{Proof: proofData, PubSignals: pubSignals}, nil
}

func (rapidsnarkEngine) Verify(proof *snarktypes.ZKProof, vkey []byte) error {
	return verifier.VerifyGroth16(*proof, vkey)
}

// ToDomain converts a rapidsnark proof into the domain Groth16Proof plus its
// public signals.
func ToDomain(p *snarktypes.ZKProof) (types.Groth16Proof, []string) {
	proof := types.Groth16Proof{
		Protocol: "groth16",
		Curve:    "bn128",
	}
	if p.Proof != nil {
		proof.PiA = p.Proof.A
		proof.PiB = p.Proof.B
		proof.PiC = p.Proof.C
		if p.Proof.Protocol != "" {
			proof.Protocol = p.Proof.Protocol
		}
	}
	return proof, p.PubSignals
}

// FromDomain converts a domain proof record back into the rapidsnark shape
// expected by the verifier.
func FromDomain(proof types.Groth16Proof, publicSignals []string) *snarktypes.ZKProof {
	return &snarktypes.ZKProof{
		Proof: &snarktypes.ProofData{
			A:        proof.PiA,
			B:        proof.PiB,
			C:        proof.PiC,
			Protocol: proof.Protocol,
		},
		PubSignals: publicSignals,
	}
}
