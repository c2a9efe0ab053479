package config

import "github.com/buildercred/zkcred/types"

// DefaultArtifactBaseURL is the artifact store serving the compiled circuit
// artifacts and the release manifest.
const DefaultArtifactBaseURL = "https://artifacts.buildercred.dev/circuits/v1"

// DefaultManifestPath is the manifest file name under the artifact base URL.
// The manifest maps "<circuitId>.<ext>" entries to sha256 hex digests.
const DefaultManifestPath = "manifest.json"

// CircuitVersions maps every circuit to its current artifact version. A bump
// here invalidates all previously cached artifacts for the circuit.
var CircuitVersions = map[types.CircuitID]string{
	types.CircuitVerifiedBuilder:  "v1",
	types.CircuitGrantTrackRecord: "v1",
	types.CircuitTeamAttestation:  "v1",
}

// BuiltinManifest returns the v1 release manifest pinned at build time, keyed
// "<circuitId>.<ext>" like the remote manifest.json. It lets a deployment
// verify artifact downloads without first fetching the manifest.
func BuiltinManifest() map[string]string {
	hashes := map[types.CircuitID][3]string{
		types.CircuitVerifiedBuilder:  {VerifiedBuilderWasmHash, VerifiedBuilderZkeyHash, VerifiedBuilderVkeyHash},
		types.CircuitGrantTrackRecord: {GrantTrackRecordWasmHash, GrantTrackRecordZkeyHash, GrantTrackRecordVkeyHash},
		types.CircuitTeamAttestation:  {TeamAttestationWasmHash, TeamAttestationZkeyHash, TeamAttestationVkeyHash},
	}
	m := make(map[string]string, len(hashes)*len(types.ArtifactTypes))
	for circuit, h := range hashes {
		for i, at := range types.ArtifactTypes {
			m[string(circuit)+"."+at.Ext()] = h[i]
		}
	}
	return m
}

const (
	// VerifiedBuilder artifact hashes, from the v1 release manifest.
	VerifiedBuilderWasmHash = "8b26f0f4b52a35906ec0b94f4ff37152ad5ea86172e93d2c2e1f67a5bc27e8f1"
	VerifiedBuilderZkeyHash = "fc3b2a49d3cf8edb2d13bf68a57b0c0a6ccb1dbab3a447a83ba7e37c3a5f72d9"
	VerifiedBuilderVkeyHash = "22e29e9edf9c614e0ee78b86d40e1efcbbea0ad6bd9f3c71e06a38c1f0e57ab4"
	// GrantTrackRecord artifact hashes.
	GrantTrackRecordWasmHash = "9d1b5df5c09ea4e1e18be0bafdafae41a5e17698f5b6e85a3fc7c8fbce0db7a7"
	GrantTrackRecordZkeyHash = "4a4f76a87a5c71a6e06981de90ad84ec49ed8dbbc9b4cba399fdeba97a83ea69"
	GrantTrackRecordVkeyHash = "d87a8dcd0e37cc8325bbab6f2a67056e5e1f5994af1aa89013b8b6ffbe6a281c"
	// TeamAttestation artifact hashes.
	TeamAttestationWasmHash = "6a05cbd8ed1d93dd29de2c4bd2a7f0e04a5a8c5ed14e2a6f47e4a80372cfb1de"
	TeamAttestationZkeyHash = "01f2e69be4efdbad846c12cb8d3053ceed2cbd9a3ab83f74da97bb4ce3d1ff02"
	TeamAttestationVkeyHash = "bdfe86e8ac10fa20b2f28e4656ec4a2a9ee6c1c1f28a80d16d5e2aeec9c3c3a6"
)
