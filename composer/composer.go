// Package composer sequences multiple circuit proofs into one composite
// credential bundle, aggregating progress across circuits and preserving the
// proofs completed before a failure.
package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildercred/zkcred/generator"
	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/prover"
	"github.com/buildercred/zkcred/types"
)

// CircuitRequest is one circuit of a composition request together with its
// prepared field-element inputs.
type CircuitRequest struct {
	CircuitID types.CircuitID `json:"circuitId"`
	Inputs    []byte          `json:"inputs"`
}

// Request is a composition request. OnProgress, when set, receives the
// overall bundle percentage.
type Request struct {
	Circuits   []CircuitRequest
	OnProgress func(percent int)
}

// CircuitError identifies the circuit whose generation stopped a composite
// run.
type CircuitError struct {
	CircuitID types.CircuitID
	Index     int
	Err       error
}

func (e *CircuitError) Error() string {
	return fmt.Sprintf("circuit %s (%d) failed: %v", e.CircuitID, e.Index, e.Err)
}

func (e *CircuitError) Unwrap() error { return e.Err }

// Composer drives the proof generator across an ordered list of circuits.
type Composer struct {
	gen *generator.Generator
}

// New creates a Composer over the given generator.
func New(gen *generator.Generator) *Composer {
	return &Composer{gen: gen}
}

// overallPercent maps the progress p of circuit i among n circuits into the
// overall bundle percentage, linear and monotonically non-decreasing across
// the whole run.
func overallPercent(i, n, p int) int {
	if n == 0 {
		return 100
	}
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	// rounded, not truncated, so the last circuit reaching 100 maps to 100
	return ((i*100+p)*100 + n*50) / (n * 100)
}

// Composite generates one proof per requested circuit, strictly in request
// order, and collects them into a ProofBundle. Circuits run sequentially:
// proving is CPU-bound, and parallel jobs would contend for the same worker
// and garble progress attribution.
//
// Every completed proof is appended to the bundle immediately, so an aborted
// or failed run still returns the proofs finished so far. The first failure
// stops the run: remaining circuits are not attempted and the partial bundle
// is returned together with a CircuitError identifying the culprit.
func (c *Composer) Composite(ctx context.Context, req *Request) (*types.ProofBundle, error) {
	if req == nil || len(req.Circuits) == 0 {
		return nil, fmt.Errorf("no circuits requested")
	}
	bundle := &types.ProofBundle{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	for _, cr := range req.Circuits {
		bundle.Circuits = append(bundle.Circuits, cr.CircuitID)
	}
	n := len(req.Circuits)
	last := -1
	report := func(p int) {
		if req.OnProgress != nil && p > last {
			last = p
			req.OnProgress(p)
		}
	}
	for i, cr := range req.Circuits {
		if err := ctx.Err(); err != nil {
			return bundle, &CircuitError{CircuitID: cr.CircuitID, Index: i, Err: prover.ErrAborted}
		}
		proof, err := c.gen.Generate(ctx, cr.CircuitID, cr.Inputs, &generator.Options{
			OnProgress: func(p int) {
				report(overallPercent(i, n, p))
			},
		})
		if err != nil {
			bundle.Results = append(bundle.Results, types.CircuitResult{
				CircuitID: cr.CircuitID,
				OK:        false,
				Error:     err.Error(),
			})
			if !errors.Is(err, prover.ErrAborted) {
				log.Warnw("composite stopped", "bundle", bundle.ID,
					"circuit", string(cr.CircuitID), "index", i, "err", err.Error())
			}
			return bundle, &CircuitError{CircuitID: cr.CircuitID, Index: i, Err: err}
		}
		bundle.Proofs = append(bundle.Proofs, proof)
		bundle.Results = append(bundle.Results, types.CircuitResult{CircuitID: cr.CircuitID, OK: true})
		report(overallPercent(i, n, 100))
	}
	report(100)
	log.Infow("composite bundle complete", "bundle", bundle.ID, "proofs", len(bundle.Proofs))
	return bundle, nil
}
