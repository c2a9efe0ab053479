package api

import (
	"encoding/json"

	"github.com/buildercred/zkcred/types"
)

// ProofRequest is the body of a single proof generation request. Inputs are
// the prepared field-element inputs of the circuit, passed through to the
// witness calculator.
type ProofRequest struct {
	CircuitID types.CircuitID `json:"circuitId"`
	Inputs    json.RawMessage `json:"inputs"`
}

// BundleRequest is the body of a composite proof request. Circuits are proven
// in the given order.
type BundleRequest struct {
	Circuits []ProofRequest `json:"circuits"`
}

// VerifyRequest is the body of a proof verification request. Method defaults
// to local verification when empty.
type VerifyRequest struct {
	Method types.VerificationMethod `json:"method,omitempty"`
}

// OperationResponse reports the in-flight proving operation, or the idle
// phase when there is none.
type OperationResponse struct {
	Phase     types.OperationPhase `json:"phase"`
	CircuitID types.CircuitID      `json:"circuitId,omitempty"`
	Progress  int                  `json:"progressPercent"`
}
