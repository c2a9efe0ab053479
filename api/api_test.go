package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	snarktypes "github.com/iden3/go-rapidsnark/types"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/buildercred/zkcred/artifacts"
	"github.com/buildercred/zkcred/composer"
	"github.com/buildercred/zkcred/generator"
	"github.com/buildercred/zkcred/prover"
	stg "github.com/buildercred/zkcred/storage"
	"github.com/buildercred/zkcred/types"
	"github.com/buildercred/zkcred/verifier"
)

type stubEngine struct {
	failOn []byte
}

func (s *stubEngine) Prove(inputs []byte, a prover.Artifacts, onProgress func(int)) (*snarktypes.ZKProof, error) {
	if s.failOn != nil && bytes.Contains(inputs, s.failOn) {
		return nil, fmt.Errorf("witness generation failed")
	}
	if onProgress != nil {
		onProgress(100)
	}
	return &snarktypes.ZKProof{
		Proof: &snarktypes.ProofData{
			A:        []string{"1", "2", "1"},
			B:        [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
			C:        []string{"5", "6", "1"},
			Protocol: "groth16",
		},
		PubSignals: []string{"7"},
	}, nil
}

func (s *stubEngine) Verify(proof *snarktypes.ZKProof, vkey []byte) error { return nil }

// newTestAPI wires the whole pipeline over an httptest artifact server and
// returns a test server for the API router.
func newTestAPI(t *testing.T, engine prover.Engine) *httptest.Server {
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
	artifactSrv := httptest.NewServer(mux)
	t.Cleanup(artifactSrv.Close)

	store, err := artifacts.NewStore(artifactSrv.URL)
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
	storage := stg.New(metadb.NewTest(t))

	a := &API{
		storage:   storage,
		cache:     cache,
		generator: gen,
		composer:  composer.New(gen),
		verifier:  verifier.NewLocal(cache, store, bridge, versions),
	}
	a.initRouter()
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})
	status, _ := doRequest(t, http.MethodGet, srv.URL+PingEndpoint, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
}

func TestProofLifecycle(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})

	// generate
	status, body := doRequest(t, http.MethodPost, srv.URL+ProofsEndpoint, &ProofRequest{
		CircuitID: types.CircuitVerifiedBuilder,
		Inputs:    json.RawMessage(`{"claim":"1"}`),
	})
	c.Assert(status, qt.Equals, http.StatusOK)
	proof := &types.ZKProof{}
	c.Assert(json.Unmarshal(body, proof), qt.IsNil)
	c.Assert(proof.ID, qt.Not(qt.Equals), "")
	c.Assert(proof.Status, qt.Equals, types.ProofStatusReady)

	// retrieve
	status, body = doRequest(t, http.MethodGet, srv.URL+"/proofs/"+proof.ID, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	stored := &types.ZKProof{}
	c.Assert(json.Unmarshal(body, stored), qt.IsNil)
	c.Assert(stored.CircuitID, qt.Equals, types.CircuitVerifiedBuilder)

	// verify locally
	status, body = doRequest(t, http.MethodPost, srv.URL+"/proofs/"+proof.ID+"/verify",
		&VerifyRequest{Method: types.VerificationLocal})
	c.Assert(status, qt.Equals, http.StatusOK)
	result := &types.VerificationResult{}
	c.Assert(json.Unmarshal(body, result), qt.IsNil)
	c.Assert(result.Valid, qt.IsTrue)
	c.Assert(result.Method, qt.Equals, types.VerificationLocal)

	// the stored proof transitioned to verified
	status, body = doRequest(t, http.MethodGet, srv.URL+"/proofs/"+proof.ID, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, stored), qt.IsNil)
	c.Assert(stored.Status, qt.Equals, types.ProofStatusVerified)
}

func TestProofNotFound(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})
	status, _ := doRequest(t, http.MethodGet, srv.URL+"/proofs/nope", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
}

func TestUnknownCircuit(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})
	status, _ := doRequest(t, http.MethodPost, srv.URL+ProofsEndpoint, &ProofRequest{
		CircuitID: types.CircuitID("bogus"),
	})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
}

func TestBundlePartialFailure(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{failOn: []byte("fail-me")})

	status, body := doRequest(t, http.MethodPost, srv.URL+BundleEndpoint, &BundleRequest{
		Circuits: []ProofRequest{
			{CircuitID: types.CircuitVerifiedBuilder, Inputs: json.RawMessage(`{"ok":1}`)},
			{CircuitID: types.CircuitGrantTrackRecord, Inputs: json.RawMessage(`{"x":"fail-me"}`)},
			{CircuitID: types.CircuitTeamAttestation, Inputs: json.RawMessage(`{"ok":1}`)},
		},
	})
	c.Assert(status, qt.Equals, http.StatusOK)
	bundle := &types.ProofBundle{}
	c.Assert(json.Unmarshal(body, bundle), qt.IsNil)
	c.Assert(bundle.Proofs, qt.HasLen, 1)
	c.Assert(bundle.Complete(), qt.IsFalse)
	c.Assert(bundle.Results, qt.HasLen, 2)
	c.Assert(bundle.Results[1].OK, qt.IsFalse)

	// the partial bundle is retrievable through its stored proofs
	status, _ = doRequest(t, http.MethodGet, srv.URL+"/proofs/"+bundle.Proofs[0].ID, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
}

func TestOnChainNotConfigured(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})

	status, body := doRequest(t, http.MethodPost, srv.URL+ProofsEndpoint, &ProofRequest{
		CircuitID: types.CircuitVerifiedBuilder,
	})
	c.Assert(status, qt.Equals, http.StatusOK)
	proof := &types.ZKProof{}
	c.Assert(json.Unmarshal(body, proof), qt.IsNil)

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/proofs/"+proof.ID+"/verify",
		&VerifyRequest{Method: types.VerificationOnChain})
	c.Assert(status, qt.Equals, http.StatusServiceUnavailable)
}

func TestOperationAndStats(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t, &stubEngine{})

	status, body := doRequest(t, http.MethodGet, srv.URL+OperationEndpoint, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	op := &OperationResponse{}
	c.Assert(json.Unmarshal(body, op), qt.IsNil)
	c.Assert(op.Phase, qt.Equals, types.PhaseIdle)

	// prefetch warms the cache, stats reflect it
	status, _ = doRequest(t, http.MethodPost,
		srv.URL+"/artifacts/prefetch/"+string(types.CircuitVerifiedBuilder), nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	status, body = doRequest(t, http.MethodGet, srv.URL+ArtifactStatsEndpoint, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	stats := &artifacts.Stats{}
	c.Assert(json.Unmarshal(body, stats), qt.IsNil)
	c.Assert(stats.EntryCount > 0, qt.IsTrue)
}
