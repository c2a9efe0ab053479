// Package config holds the service configuration and the circuit artifact
// release constants.
package config

import (
	"os"
	"time"

	"github.com/buildercred/zkcred/types"
)

const (
	// DefaultCacheBudget is the byte budget for cached binary artifacts.
	// Verification keys are small JSON documents and are exempt.
	DefaultCacheBudget = 512 << 20 // 512 MiB

	// DefaultWorkerTimeout bounds the wait for a worker response before the
	// worker is marked unhealthy for the rest of the session.
	DefaultWorkerTimeout = 5 * time.Minute

	// DefaultDataDirName is the directory under the user cache dir where the
	// artifact cache and proof store live.
	DefaultDataDirName = "zkcred"
)

// ProofTTL maps circuits to the validity window of their proofs. A zero
// duration means the proof never expires.
var ProofTTL = map[types.CircuitID]time.Duration{
	types.CircuitVerifiedBuilder:  0,
	types.CircuitGrantTrackRecord: 90 * 24 * time.Hour,
	types.CircuitTeamAttestation:  180 * 24 * time.Hour,
}

// Config is the runtime configuration of the zkcredd service.
type Config struct {
	DataDir         string
	ArtifactBaseURL string
	PinnedManifest  bool
	CacheBudget     int64
	WorkerEnabled   bool
	WorkerTimeout   time.Duration
	LogLevel        string
	APIHost         string
	APIPort         int
	Web3Endpoint    string
	VerifierAddress string
	PrivKey         string
}

// DefaultConfig returns a Config populated with defaults and environment
// overrides (ZKCRED_ARTIFACTS_URL, ZKCRED_DATADIR).
func DefaultConfig() *Config {
	cfg := &Config{
		ArtifactBaseURL: DefaultArtifactBaseURL,
		CacheBudget:     DefaultCacheBudget,
		WorkerEnabled:   true,
		WorkerTimeout:   DefaultWorkerTimeout,
		LogLevel:        "info",
		APIHost:         "0.0.0.0",
		APIPort:         9090,
	}
	if url := os.Getenv("ZKCRED_ARTIFACTS_URL"); url != "" {
		cfg.ArtifactBaseURL = url
	}
	if dir := os.Getenv("ZKCRED_DATADIR"); dir != "" {
		cfg.DataDir = dir
	} else {
		cache, err := os.UserCacheDir()
		if err != nil || cache == "" {
			cfg.DataDir = os.TempDir() + "/" + DefaultDataDirName
		} else {
			cfg.DataDir = cache + "/" + DefaultDataDirName
		}
	}
	return cfg
}
