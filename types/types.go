// Package types contains the domain model shared by every zkcred component:
// circuit and artifact identifiers, proof records, bundles and verification
// results.
package types

import (
	"fmt"
	"time"
)

// CircuitID identifies one of the fixed credential circuits. Each circuit has
// a fixed public-signal layout and a versioned set of compiled artifacts.
type CircuitID string

const (
	// CircuitVerifiedBuilder proves ownership of a verified builder profile.
	CircuitVerifiedBuilder CircuitID = "verified-builder"
	// CircuitGrantTrackRecord proves a grant delivery track record.
	CircuitGrantTrackRecord CircuitID = "grant-track-record"
	// CircuitTeamAttestation proves membership attested by a team.
	CircuitTeamAttestation CircuitID = "team-attestation"
)

// CircuitIDs lists every known circuit.
var CircuitIDs = []CircuitID{
	CircuitVerifiedBuilder,
	CircuitGrantTrackRecord,
	CircuitTeamAttestation,
}

// Valid reports whether the circuit id names a known circuit.
func (c CircuitID) Valid() bool {
	for _, id := range CircuitIDs {
		if c == id {
			return true
		}
	}
	return false
}

func (c CircuitID) String() string { return string(c) }

// ArtifactType names one of the three files required to prove and verify a
// circuit.
type ArtifactType string

const (
	ArtifactWitnessBinary   ArtifactType = "witness-binary"
	ArtifactProvingKey      ArtifactType = "proving-key"
	ArtifactVerificationKey ArtifactType = "verification-key"
)

// ArtifactTypes lists the artifact types in download order.
var ArtifactTypes = []ArtifactType{
	ArtifactWitnessBinary,
	ArtifactProvingKey,
	ArtifactVerificationKey,
}

// Ext returns the file extension used by the artifact store manifest for this
// artifact type.
func (a ArtifactType) Ext() string {
	switch a {
	case ArtifactWitnessBinary:
		return "wasm"
	case ArtifactProvingKey:
		return "zkey"
	case ArtifactVerificationKey:
		return "vkey.json"
	}
	return ""
}

// ArtifactKey uniquely addresses one immutable artifact blob. The version
// changes whenever the circuit or its trusted setup changes, which invalidates
// prior cache entries for the circuit.
type ArtifactKey struct {
	Circuit CircuitID
	Version string
	Type    ArtifactType
}

// String returns the composite key used by the persisted cache layout.
func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Circuit, k.Version, k.Type)
}

// ProofStatus is the lifecycle status of a stored proof.
type ProofStatus string

const (
	ProofStatusReady    ProofStatus = "ready"
	ProofStatusVerified ProofStatus = "verified"
	ProofStatusExpired  ProofStatus = "expired"
)

// Groth16Proof holds the three curve points of a Groth16 proof in the decimal
// string encoding produced by the prover.
type Groth16Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
}

// ZKProof is a generated credential proof. It is immutable once created except
// for the Status and VerifiedAt transitions applied by the verifiers.
type ZKProof struct {
	ID            string       `json:"id"`
	CircuitID     CircuitID    `json:"circuitId"`
	Proof         Groth16Proof `json:"proof"`
	PublicSignals []string     `json:"publicSignals"`
	Status        ProofStatus  `json:"status"`
	GeneratedAt   time.Time    `json:"generatedAt"`
	VerifiedAt    *time.Time   `json:"verifiedAt,omitempty"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
}

// Expired reports whether the proof has an expiry policy and it has lapsed.
func (p *ZKProof) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// CircuitResult records the outcome of one circuit within a bundle request.
type CircuitResult struct {
	CircuitID CircuitID `json:"circuitId"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// ProofBundle is the ordered collection of proofs produced by one composition
// request. Proofs completed before a failure are retained even when the bundle
// as a whole fails.
type ProofBundle struct {
	ID        string          `json:"id"`
	Circuits  []CircuitID     `json:"circuits"`
	Proofs    []*ZKProof      `json:"proofs"`
	Results   []CircuitResult `json:"results"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Complete reports whether every requested circuit produced a proof.
func (b *ProofBundle) Complete() bool {
	return len(b.Proofs) == len(b.Circuits)
}

// VerificationMethod tells which path verified a proof.
type VerificationMethod string

const (
	VerificationLocal   VerificationMethod = "local"
	VerificationOnChain VerificationMethod = "on-chain"
)

// VerificationResult is the outcome of a local or on-chain verification.
// An invalid proof is a result with Valid set to false, not an error.
type VerificationResult struct {
	Valid        bool               `json:"isValid"`
	Timestamp    time.Time          `json:"timestamp"`
	Method       VerificationMethod `json:"method"`
	Error        string             `json:"error,omitempty"`
	GasUsed      uint64             `json:"gasUsed,omitempty"`
	CredentialID string             `json:"credentialId,omitempty"`
}

// OperationPhase is the phase of the single in-flight proving operation.
type OperationPhase string

const (
	PhaseIdle      OperationPhase = "idle"
	PhaseLoading   OperationPhase = "loading"
	PhaseProving   OperationPhase = "proving"
	PhaseVerifying OperationPhase = "verifying"
)

// ProofOperation is the transient state of the in-flight operation, exposed
// for progress reporting. Progress is a percentage in [0, 100].
type ProofOperation struct {
	CircuitID CircuitID      `json:"circuitId"`
	Phase     OperationPhase `json:"phase"`
	Progress  int            `json:"progressPercent"`
}
