package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/buildercred/zkcred/api"
	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/composer"
	"github.com/buildercred/zkcred/config"
	"github.com/buildercred/zkcred/generator"
	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/prover"
	"github.com/buildercred/zkcred/storage"
	"github.com/buildercred/zkcred/verifier"
	"github.com/buildercred/zkcred/web3"
)

// pruneInterval is how often the proof store is scanned for expired proofs.
const pruneInterval = time.Hour

func main() {
	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.APIHost, "host", cfg.APIHost, "API host to bind")
	flag.IntVar(&cfg.APIPort, "port", cfg.APIPort, "API port to bind")
	flag.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory for the artifact cache and proof store")
	flag.StringVar(&cfg.ArtifactBaseURL, "artifacts-url", cfg.ArtifactBaseURL, "base URL of the circuit artifact release")
	flag.BoolVar(&cfg.PinnedManifest, "pinned-manifest", cfg.PinnedManifest,
		"verify artifact downloads against the built-in release hashes instead of the remote manifest")
	flag.Int64Var(&cfg.CacheBudget, "cache-budget", cfg.CacheBudget, "byte budget for cached binary artifacts")
	flag.BoolVar(&cfg.WorkerEnabled, "worker", cfg.WorkerEnabled, "run proving in a background worker")
	flag.DurationVar(&cfg.WorkerTimeout, "worker-timeout", cfg.WorkerTimeout, "timeout for worker proof jobs")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Web3Endpoint, "w3rpc", cfg.Web3Endpoint, "web3 rpc endpoint for on-chain verification (optional)")
	flag.StringVar(&cfg.VerifierAddress, "verifier-contract", cfg.VerifierAddress, "address of the deployed Groth16 verifier contract")
	flag.StringVar(&cfg.PrivKey, "privkey", cfg.PrivKey, "private key for credential attestation transactions (optional)")
	flag.Parse()
	log.Init(cfg.LogLevel, "stdout", nil)

	database, err := metadb.New(db.TypePebble, cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open database at %s: %v", cfg.DataDir, err)
	}

	store, err := artifacts.NewStore(cfg.ArtifactBaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.PinnedManifest {
		store.SetManifest(artifacts.Manifest(config.BuiltinManifest()))
	}
	cache := artifacts.NewCache(database, cfg.CacheBudget)
	bridge := prover.NewBridge(prover.NewEngine(), &prover.BridgeConfig{
		WorkerEnabled: cfg.WorkerEnabled,
		WorkerTimeout: cfg.WorkerTimeout,
	})
	defer bridge.Close()

	gen := generator.New(cache, store, bridge, config.CircuitVersions, config.ProofTTL)
	stg := storage.New(database)
	defer stg.Close()

	var onchain *web3.VerifierClient
	if cfg.Web3Endpoint != "" && cfg.VerifierAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		onchain, err = web3.NewVerifierClient(ctx, cfg.Web3Endpoint, common.HexToAddress(cfg.VerifierAddress))
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to web3 endpoint: %v", err)
		}
		if cfg.PrivKey != "" {
			if err := onchain.SetAccountPrivateKey(cfg.PrivKey); err != nil {
				log.Fatal(err)
			}
			log.Infow("attestation account configured", "address", onchain.AccountAddress().Hex())
		}
		log.Infow("on-chain verifier configured", "chainId", onchain.ChainID,
			"contract", cfg.VerifierAddress)
	}

	if _, err := api.New(&api.APIConfig{
		Host:      cfg.APIHost,
		Port:      cfg.APIPort,
		Storage:   stg,
		Cache:     cache,
		Generator: gen,
		Composer:  composer.New(gen),
		Verifier:  verifier.NewLocal(cache, store, bridge, config.CircuitVersions),
		OnChain:   onchain,
	}); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pruneLoop(ctx, stg)

	log.Infow("zkcredd started", "datadir", cfg.DataDir, "artifacts", store.BaseURL())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

// pruneLoop periodically marks expired proofs in the store.
func pruneLoop(ctx context.Context, stg *storage.Storage) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := stg.PruneExpired(time.Now()); err != nil {
				log.Warnw("failed to prune expired proofs", "err", err.Error())
			}
		}
	}
}
