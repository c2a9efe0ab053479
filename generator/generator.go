// Package generator orchestrates proof generation: artifact acquisition from
// the cache or the remote store with integrity checking, then Groth16 proving
// through the execution bridge, tracking a single in-flight operation with
// phase and progress reporting.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/prover"
	"github.com/buildercred/zkcred/types"
)

// Options carries the optional callbacks of a Generate call. OnProgress
// receives the overall percentage (loading mapped to 0-30, proving to
// 30-100); OnProvingProgress receives the raw prover percentage.
type Options struct {
	OnProgress        func(percent int)
	OnProvingProgress func(percent int)
}

// Generator drives single-circuit proof generation. At most one operation is
// in flight per Generator; starting a new one aborts the previous one first.
type Generator struct {
	cache    *artifacts.Cache
	store    *artifacts.Store
	bridge   *prover.Bridge
	versions map[types.CircuitID]string
	ttl      map[types.CircuitID]time.Duration

	mu sync.Mutex
	op *operation
}

type operation struct {
	circuit  types.CircuitID
	phase    types.OperationPhase
	progress int
	cancel   context.CancelFunc
}

// New creates a Generator. versions maps each circuit to its current artifact
// version; ttl maps circuits to their proof validity window (zero duration or
// missing entry means no expiry).
func New(cache *artifacts.Cache, store *artifacts.Store, bridge *prover.Bridge,
	versions map[types.CircuitID]string, ttl map[types.CircuitID]time.Duration,
) *Generator {
	return &Generator{
		cache:    cache,
		store:    store,
		bridge:   bridge,
		versions: versions,
		ttl:      ttl,
	}
}

// CurrentOperation returns a snapshot of the in-flight operation, or nil when
// idle.
func (g *Generator) CurrentOperation() *types.ProofOperation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op == nil {
		return nil
	}
	return &types.ProofOperation{
		CircuitID: g.op.circuit,
		Phase:     g.op.phase,
		Progress:  g.op.progress,
	}
}

// begin claims the operation slot, aborting any prior in-flight operation.
func (g *Generator) begin(ctx context.Context, circuit types.CircuitID) (*operation, context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op != nil {
		log.Debugw("aborting previous operation", "circuit", string(g.op.circuit))
		g.op.cancel()
	}
	opCtx, cancel := context.WithCancel(ctx)
	op := &operation{
		circuit: circuit,
		phase:   types.PhaseLoading,
		cancel:  cancel,
	}
	g.op = op
	return op, opCtx
}

// finish clears the operation slot if it still belongs to op.
func (g *Generator) finish(op *operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	op.cancel()
	if g.op == op {
		g.op = nil
	}
}

func (g *Generator) setPhase(op *operation, phase types.OperationPhase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	op.phase = phase
}

func (g *Generator) setProgress(op *operation, percent int, onProgress func(int)) {
	g.mu.Lock()
	if percent > op.progress {
		op.progress = percent
	} else {
		percent = op.progress
	}
	g.mu.Unlock()
	if onProgress != nil {
		onProgress(percent)
	}
}

// version returns the configured artifact version for the circuit.
func (g *Generator) version(circuit types.CircuitID) string {
	if v, ok := g.versions[circuit]; ok {
		return v
	}
	return "v1"
}

// Generate produces a proof for the circuit from the prepared field-element
// inputs. On success the result is wrapped into a ZKProof with status ready.
// On any failure no ZKProof is created and the operation slot is cleared; an
// abort surfaces as prover.ErrAborted so callers can tell cancellation from
// failure.
func (g *Generator) Generate(ctx context.Context, circuit types.CircuitID,
	preparedInputs []byte, opts *Options,
) (*types.ZKProof, error) {
	if !circuit.Valid() {
		return nil, fmt.Errorf("unknown circuit %q", circuit)
	}
	if err := ctx.Err(); err != nil {
		// aborted before any cache or network access
		return nil, prover.ErrAborted
	}
	if opts == nil {
		opts = &Options{}
	}
	op, opCtx := g.begin(ctx, circuit)
	defer g.finish(op)

	loaded, err := g.loadArtifacts(opCtx, op, circuit, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	if err := opCtx.Err(); err != nil {
		return nil, prover.ErrAborted
	}

	g.setPhase(op, types.PhaseProving)
	proof, err := g.bridge.RunProve(opCtx, circuit, preparedInputs, loaded, func(p int) {
		if opts.OnProvingProgress != nil {
			opts.OnProvingProgress(p)
		}
		g.setProgress(op, provingToOverall(p), opts.OnProgress)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || opCtx.Err() != nil {
			return nil, prover.ErrAborted
		}
		return nil, err
	}
	g.setProgress(op, 100, opts.OnProgress)

	groth16Proof, publicSignals := prover.ToDomain(proof)
	now := time.Now()
	record := &types.ZKProof{
		ID:            uuid.New().String(),
		CircuitID:     circuit,
		Proof:         groth16Proof,
		PublicSignals: publicSignals,
		Status:        types.ProofStatusReady,
		GeneratedAt:   now,
	}
	if ttl := g.ttl[circuit]; ttl > 0 {
		expires := now.Add(ttl)
		record.ExpiresAt = &expires
	}
	log.Infow("proof generated", "circuit", string(circuit), "id", record.ID,
		"signals", len(publicSignals))
	return record, nil
}

// BeginVerification claims the operation slot for a verification run, so that
// at most one proof, verification or composite job is in flight at a time. Any
// prior operation is aborted. The returned context is cancelled if another
// operation claims the slot; the release function must be called when the
// verification finishes.
func (g *Generator) BeginVerification(ctx context.Context, circuit types.CircuitID) (context.Context, func()) {
	op, opCtx := g.begin(ctx, circuit)
	g.setPhase(op, types.PhaseVerifying)
	return opCtx, func() { g.finish(op) }
}

// Prefetch loads all three artifacts for the circuit into the cache so that
// proving can later run offline.
func (g *Generator) Prefetch(ctx context.Context, circuit types.CircuitID) error {
	if !circuit.Valid() {
		return fmt.Errorf("unknown circuit %q", circuit)
	}
	op, opCtx := g.begin(ctx, circuit)
	defer g.finish(op)
	_, err := g.loadArtifacts(opCtx, op, circuit, nil)
	return err
}

// Ready reports whether the circuit can be proven without network access.
func (g *Generator) Ready(circuit types.CircuitID) bool {
	return g.cache.Has(circuit, g.version(circuit))
}

// loadArtifacts returns the three artifacts for the circuit, reading the
// cache first and falling back to the store with an integrity check. Loading
// progress is byte-weighted across the artifacts that must actually be
// fetched; cache hits are instantaneous.
func (g *Generator) loadArtifacts(ctx context.Context, op *operation,
	circuit types.CircuitID, onProgress func(int),
) (prover.Artifacts, error) {
	version := g.version(circuit)
	var loaded prover.Artifacts

	// resolve cache hits first so the fetch count is known up front
	var missing []types.ArtifactType
	for _, at := range types.ArtifactTypes {
		if err := ctx.Err(); err != nil {
			return loaded, prover.ErrAborted
		}
		switch at {
		case types.ArtifactVerificationKey:
			if vkey, ok := g.cache.GetVerificationKey(circuit, version); ok {
				loaded.VerificationKey = vkey
				continue
			}
		default:
			if data, ok := g.cache.GetBinary(circuit, at, version); ok {
				if at == types.ArtifactWitnessBinary {
					loaded.WitnessBinary = data
				} else {
					loaded.ProvingKey = data
				}
				continue
			}
		}
		missing = append(missing, at)
	}

	// resolve the byte size of each missing artifact so progress is
	// proportional to bytes downloaded; when any size is unannounced the
	// equal per-artifact weighting serves as fallback
	var totalBytes int64
	byByte := len(missing) > 0
	for _, at := range missing {
		if err := ctx.Err(); err != nil {
			return loaded, prover.ErrAborted
		}
		n, err := g.store.Size(ctx, circuit, at)
		if err != nil || n <= 0 {
			byByte = false
			break
		}
		totalBytes += n
	}

	var fetchedBytes int64
	for i, at := range missing {
		if err := ctx.Err(); err != nil {
			return loaded, prover.ErrAborted
		}
		data, err := g.store.Fetch(ctx, circuit, at, func(done, total int64) {
			percent := loadingPercent(i, len(missing), done, total)
			if byByte {
				percent = byteLoadingPercent(fetchedBytes+done, totalBytes)
			}
			g.setProgress(op, loadingToOverall(percent), onProgress)
		})
		if err != nil {
			// a bad download is never cached; integrity errors surface as-is
			return loaded, err
		}
		switch at {
		case types.ArtifactWitnessBinary:
			loaded.WitnessBinary = data
			g.cacheBinary(circuit, at, version, data)
		case types.ArtifactProvingKey:
			loaded.ProvingKey = data
			g.cacheBinary(circuit, at, version, data)
		case types.ArtifactVerificationKey:
			loaded.VerificationKey = data
			g.cache.SetVerificationKey(circuit, version, data)
		}
		fetchedBytes += int64(len(data))
		percent := loadingPercent(i+1, len(missing), 0, 0)
		if byByte {
			percent = byteLoadingPercent(fetchedBytes, totalBytes)
		}
		g.setProgress(op, loadingToOverall(percent), onProgress)
	}
	g.setProgress(op, loadingSpan, onProgress)
	return loaded, nil
}

func (g *Generator) cacheBinary(circuit types.CircuitID, at types.ArtifactType, version string, data []byte) {
	if err := g.cache.SetBinary(circuit, at, version, data); err != nil {
		// an artifact larger than the whole budget proceeds uncached
		log.Warnw("artifact not cached", "circuit", string(circuit),
			"type", string(at), "err", err.Error())
	}
}
