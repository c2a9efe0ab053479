package composer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	snarktypes "github.com/iden3/go-rapidsnark/types"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/generator"
	"github.com/buildercred/zkcred/prover"
	"github.com/buildercred/zkcred/types"
)

// stubEngine fails when the inputs match failOn, so individual circuits of a
// composite run can be made to fail through their request inputs.
type stubEngine struct {
	failOn []byte
	calls  int
}

func (s *stubEngine) Prove(inputs []byte, a prover.Artifacts, onProgress func(int)) (*snarktypes.ZKProof, error) {
	s.calls++
	if s.failOn != nil && bytes.Equal(inputs, s.failOn) {
		return nil, fmt.Errorf("witness generation failed")
	}
	if onProgress != nil {
		onProgress(0)
		onProgress(50)
		onProgress(100)
	}
	return &snarktypes.ZKProof{
		Proof: &snarktypes.ProofData{
			A:        []string{"1", "2", "1"},
			B:        [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
			C:        []string{"5", "6", "1"},
			Protocol: "groth16",
		},
		PubSignals: []string{"9"},
	}, nil
}

func (s *stubEngine) Verify(proof *snarktypes.ZKProof, vkey []byte) error { return nil }

func newTestComposer(t *testing.T, engine prover.Engine) *Composer {
	t.Helper()
	files := map[string][]byte{}
	manifest := artifacts.Manifest{}
	for _, id := range types.CircuitIDs {
		for _, at := range types.ArtifactTypes {
			name := artifacts.EntryName(id, at)
			content := []byte("content of " + name)
			files[name] = content
			sum := sha256.Sum256(content)
			manifest[name] = hex.EncodeToString(sum[:])
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(manifest)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path[1:]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := artifacts.NewStore(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	cache := artifacts.NewCache(metadb.NewTest(t), 1<<20)
	bridge := prover.NewBridge(engine, &prover.BridgeConfig{WorkerEnabled: false})
	versions := map[types.CircuitID]string{}
	for _, id := range types.CircuitIDs {
		versions[id] = "v1"
	}
	gen := generator.New(cache, store, bridge, versions, map[types.CircuitID]time.Duration{})
	return New(gen)
}

func TestComposite(t *testing.T) {
	c := qt.New(t)
	comp := newTestComposer(t, &stubEngine{})

	var progress []int
	bundle, err := comp.Composite(context.Background(), &Request{
		Circuits: []CircuitRequest{
			{CircuitID: types.CircuitVerifiedBuilder, Inputs: []byte("a")},
			{CircuitID: types.CircuitGrantTrackRecord, Inputs: []byte("b")},
			{CircuitID: types.CircuitTeamAttestation, Inputs: []byte("c")},
		},
		OnProgress: func(p int) { progress = append(progress, p) },
	})
	c.Assert(err, qt.IsNil)
	c.Assert(bundle.ID, qt.Not(qt.Equals), "")
	c.Assert(bundle.Proofs, qt.HasLen, 3)
	c.Assert(bundle.Results, qt.HasLen, 3)
	c.Assert(bundle.Complete(), qt.IsTrue)
	for i, id := range []types.CircuitID{
		types.CircuitVerifiedBuilder,
		types.CircuitGrantTrackRecord,
		types.CircuitTeamAttestation,
	} {
		c.Assert(bundle.Proofs[i].CircuitID, qt.Equals, id)
		c.Assert(bundle.Results[i].OK, qt.IsTrue)
	}

	// overall progress is strictly increasing and ends at 100
	c.Assert(len(progress) > 0, qt.IsTrue)
	for i := 1; i < len(progress); i++ {
		c.Assert(progress[i] > progress[i-1], qt.IsTrue)
	}
	c.Assert(progress[len(progress)-1], qt.Equals, 100)
}

func TestCompositePartialFailure(t *testing.T) {
	c := qt.New(t)
	engine := &stubEngine{failOn: []byte("b")}
	comp := newTestComposer(t, engine)

	bundle, err := comp.Composite(context.Background(), &Request{
		Circuits: []CircuitRequest{
			{CircuitID: types.CircuitVerifiedBuilder, Inputs: []byte("a")},
			{CircuitID: types.CircuitGrantTrackRecord, Inputs: []byte("b")},
			{CircuitID: types.CircuitTeamAttestation, Inputs: []byte("c")},
		},
	})
	c.Assert(err, qt.IsNotNil)
	var cerr *CircuitError
	c.Assert(errors.As(err, &cerr), qt.IsTrue)
	c.Assert(cerr.CircuitID, qt.Equals, types.CircuitGrantTrackRecord)
	c.Assert(cerr.Index, qt.Equals, 1)

	// the first proof survived, the third circuit was never attempted
	c.Assert(bundle, qt.IsNotNil)
	c.Assert(bundle.Proofs, qt.HasLen, 1)
	c.Assert(bundle.Proofs[0].CircuitID, qt.Equals, types.CircuitVerifiedBuilder)
	c.Assert(bundle.Complete(), qt.IsFalse)
	c.Assert(engine.calls, qt.Equals, 2)

	c.Assert(bundle.Results, qt.HasLen, 2)
	c.Assert(bundle.Results[1].OK, qt.IsFalse)
	c.Assert(bundle.Results[1].Error, qt.Not(qt.Equals), "")
}

func TestCompositeEmptyRequest(t *testing.T) {
	c := qt.New(t)
	comp := newTestComposer(t, &stubEngine{})
	_, err := comp.Composite(context.Background(), &Request{})
	c.Assert(err, qt.IsNotNil)
}

func TestCompositeAborted(t *testing.T) {
	c := qt.New(t)
	comp := newTestComposer(t, &stubEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bundle, err := comp.Composite(ctx, &Request{
		Circuits: []CircuitRequest{{CircuitID: types.CircuitVerifiedBuilder}},
	})
	c.Assert(errors.Is(err, prover.ErrAborted), qt.IsTrue)
	c.Assert(bundle.Proofs, qt.HasLen, 0)
}

func TestOverallPercent(t *testing.T) {
	c := qt.New(t)
	c.Assert(overallPercent(0, 3, 0), qt.Equals, 0)
	c.Assert(overallPercent(0, 3, 100), qt.Equals, 33)
	c.Assert(overallPercent(1, 3, 50), qt.Equals, 50)
	c.Assert(overallPercent(2, 3, 100), qt.Equals, 100)
	c.Assert(overallPercent(0, 1, 42), qt.Equals, 42)
}
