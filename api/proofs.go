package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/composer"
	"github.com/buildercred/zkcred/log"
	stg "github.com/buildercred/zkcred/storage"
	"github.com/buildercred/zkcred/types"
)

// newProof handles POST /proofs. It generates a proof for the requested
// circuit, stores it and returns it.
func (a *API) newProof(w http.ResponseWriter, r *http.Request) {
	req := &ProofRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if !req.CircuitID.Valid() {
		ErrUnknownCircuit.Withf("%s", req.CircuitID).Write(w)
		return
	}
	proof, err := a.generator.Generate(r.Context(), req.CircuitID, req.Inputs, nil)
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	if err := a.storage.SetProof(proof); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

// newBundle handles POST /proofs/bundle. Circuits are proven sequentially;
// the bundle is stored and returned even when a circuit fails, with the
// failure recorded in its results.
func (a *API) newBundle(w http.ResponseWriter, r *http.Request) {
	req := &BundleRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(req.Circuits) == 0 {
		ErrEmptyBundleRequest.Write(w)
		return
	}
	creq := &composer.Request{}
	for _, cr := range req.Circuits {
		if !cr.CircuitID.Valid() {
			ErrUnknownCircuit.Withf("%s", cr.CircuitID).Write(w)
			return
		}
		creq.Circuits = append(creq.Circuits, composer.CircuitRequest{
			CircuitID: cr.CircuitID,
			Inputs:    cr.Inputs,
		})
	}
	bundle, err := a.composer.Composite(r.Context(), creq)
	if err != nil {
		var cerr *composer.CircuitError
		if bundle == nil || !errors.As(err, &cerr) {
			writeGenerationError(w, err)
			return
		}
		log.Warnw("bundle completed partially", "bundle", bundle.ID,
			"failed", string(cerr.CircuitID))
	}
	if err := a.storage.SetBundle(bundle); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, bundle)
}

// proof handles GET /proofs/{proofId}.
func (a *API) proof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, ProofURLParam)
	proof, err := a.storage.Proof(id)
	if err != nil {
		if errors.Is(err, stg.ErrNotFound) {
			ErrProofNotFound.Withf("%s", id).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

// verifyProof handles POST /proofs/{proofId}/verify. The body selects the
// verification method; it defaults to local.
func (a *API) verifyProof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, ProofURLParam)
	proof, err := a.storage.Proof(id)
	if err != nil {
		if errors.Is(err, stg.ErrNotFound) {
			ErrProofNotFound.Withf("%s", id).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	req := &VerifyRequest{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			ErrMalformedBody.WithErr(err).Write(w)
			return
		}
	}
	var result *types.VerificationResult
	switch req.Method {
	case "", types.VerificationLocal:
		ctx, release := a.generator.BeginVerification(r.Context(), proof.CircuitID)
		result, err = a.verifier.Verify(ctx, proof)
		release()
	case types.VerificationOnChain:
		if a.onchain == nil {
			ErrOnChainNotConfigured.Write(w)
			return
		}
		ctx, release := a.generator.BeginVerification(r.Context(), proof.CircuitID)
		result, err = a.onchain.VerifyProof(ctx, proof)
		release()
	default:
		ErrInvalidVerifyMethod.Withf("%s", req.Method).Write(w)
		return
	}
	if err != nil {
		ErrVerificationFailed.WithErr(err).Write(w)
		return
	}
	if err := a.storage.SetVerificationResult(id, result); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, result)
}

// operation handles GET /operation.
func (a *API) operation(w http.ResponseWriter, r *http.Request) {
	op := a.generator.CurrentOperation()
	if op == nil {
		httpWriteJSON(w, &OperationResponse{Phase: types.PhaseIdle})
		return
	}
	httpWriteJSON(w, &OperationResponse{
		Phase:     op.Phase,
		CircuitID: op.CircuitID,
		Progress:  op.Progress,
	})
}

// artifactStats handles GET /artifacts/stats.
func (a *API) artifactStats(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, a.cache.Stats())
}

// prefetch handles POST /artifacts/prefetch/{circuitId}.
func (a *API) prefetch(w http.ResponseWriter, r *http.Request) {
	circuit := types.CircuitID(chi.URLParam(r, CircuitURLParam))
	if !circuit.Valid() {
		ErrUnknownCircuit.Withf("%s", circuit).Write(w)
		return
	}
	if err := a.generator.Prefetch(r.Context(), circuit); err != nil {
		ErrArtifactFetchFailed.WithErr(err).Write(w)
		return
	}
	httpWriteOK(w)
}

func writeGenerationError(w http.ResponseWriter, err error) {
	var intErr *artifacts.IntegrityError
	var fetchErr *artifacts.FetchError
	switch {
	case errors.As(err, &intErr), errors.As(err, &fetchErr):
		ErrArtifactFetchFailed.WithErr(err).Write(w)
	default:
		ErrProofGenerationFailed.WithErr(err).Write(w)
	}
}
