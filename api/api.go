// Package api exposes the proof pipeline over HTTP: proof and bundle
// generation, verification, artifact cache management and operation status.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/composer"
	"github.com/buildercred/zkcred/generator"
	"github.com/buildercred/zkcred/log"
	stg "github.com/buildercred/zkcred/storage"
	"github.com/buildercred/zkcred/verifier"
	"github.com/buildercred/zkcred/web3"
)

// APIConfig type represents the configuration for the API HTTP server.
// The OnChain client is optional; when nil, on-chain verification requests
// are rejected.
type APIConfig struct {
	Host      string
	Port      int
	Storage   *stg.Storage
	Cache     *artifacts.Cache
	Generator *generator.Generator
	Composer  *composer.Composer
	Verifier  *verifier.Local
	OnChain   *web3.VerifierClient
}

// API type represents the API HTTP server for the proof pipeline.
type API struct {
	router    *chi.Mux
	storage   *stg.Storage
	cache     *artifacts.Cache
	generator *generator.Generator
	composer  *composer.Composer
	verifier  *verifier.Local
	onchain   *web3.VerifierClient
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil || conf.Cache == nil || conf.Generator == nil ||
		conf.Composer == nil || conf.Verifier == nil {
		return nil, fmt.Errorf("missing pipeline components")
	}
	a := &API{
		storage:   conf.Storage,
		cache:     conf.Cache,
		generator: conf.Generator,
		composer:  conf.Composer,
		verifier:  conf.Verifier,
		onchain:   conf.OnChain,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", ProofsEndpoint, "method", "POST")
	a.router.Post(ProofsEndpoint, a.newProof)
	log.Infow("register handler", "endpoint", BundleEndpoint, "method", "POST")
	a.router.Post(BundleEndpoint, a.newBundle)
	log.Infow("register handler", "endpoint", ProofEndpoint, "method", "GET")
	a.router.Get(ProofEndpoint, a.proof)
	log.Infow("register handler", "endpoint", VerifyEndpoint, "method", "POST")
	a.router.Post(VerifyEndpoint, a.verifyProof)
	log.Infow("register handler", "endpoint", OperationEndpoint, "method", "GET")
	a.router.Get(OperationEndpoint, a.operation)
	log.Infow("register handler", "endpoint", ArtifactStatsEndpoint, "method", "GET")
	a.router.Get(ArtifactStatsEndpoint, a.artifactStats)
	log.Infow("register handler", "endpoint", PrefetchEndpoint, "method", "POST")
	a.router.Post(PrefetchEndpoint, a.prefetch)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(10 * time.Minute))

	// Register the API handlers
	a.registerHandlers()
}
