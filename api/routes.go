package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// ProofsEndpoint is the endpoint for generating a single circuit proof
	ProofsEndpoint = "/proofs"
	// BundleEndpoint is the endpoint for generating a composite proof bundle
	BundleEndpoint = "/proofs/bundle"
	// ProofEndpoint is the endpoint to get a stored proof
	ProofURLParam = "proofId"
	ProofEndpoint = "/proofs/{" + ProofURLParam + "}"
	// VerifyEndpoint is the endpoint for verifying a stored proof
	VerifyEndpoint = "/proofs/{" + ProofURLParam + "}/verify"
	// OperationEndpoint is the endpoint to get the in-flight operation status
	OperationEndpoint = "/operation"
	// ArtifactStatsEndpoint is the endpoint to get the artifact cache stats
	ArtifactStatsEndpoint = "/artifacts/stats"
	// PrefetchEndpoint is the endpoint to warm the artifact cache for a circuit
	CircuitURLParam  = "circuitId"
	PrefetchEndpoint = "/artifacts/prefetch/{" + CircuitURLParam + "}"
)
