package verifier

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/buildercred/zkcred/types"
)

func TestToRecursionRejectsBadInput(t *testing.T) {
	c := qt.New(t)

	_, _, err := ToRecursion([]byte(`{}`), nil)
	c.Assert(err, qt.IsNotNil)

	proof := &types.ZKProof{
		ID:        "p1",
		CircuitID: types.CircuitVerifiedBuilder,
		Proof: types.Groth16Proof{
			PiA:      []string{"1", "2", "1"},
			PiB:      [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
			PiC:      []string{"5", "6", "1"},
			Protocol: "groth16",
			Curve:    "bn128",
		},
		PublicSignals: []string{"7"},
		Status:        types.ProofStatusReady,
		GeneratedAt:   time.Now(),
	}
	// a verification key that is not valid vkey JSON fails before conversion
	_, _, err = ToRecursion([]byte(`not json`), proof)
	c.Assert(err, qt.IsNotNil)

	// malformed proof coordinates are rejected while parsing the proof
	bad := *proof
	bad.Proof.PiA = []string{"not a number"}
	_, _, err = ToRecursion([]byte(`{}`), &bad)
	c.Assert(err, qt.IsNotNil)
}
