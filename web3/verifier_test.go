package web3

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"

	"github.com/buildercred/zkcred/types"
)

// fakeBackend implements bind.ContractBackend returning a fixed verifyProof
// outcome and recording submitted transactions.
type fakeBackend struct {
	verifyResult bool
	calls        int
	sentTx       *ethtypes.Transaction
}

func (f *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	out := make([]byte, 32)
	if f.verifyResult {
		out[31] = 1
	}
	return out, nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{BaseFee: big.NewInt(1000000000)}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1000000000), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1000000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 210000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	f.sentTx = tx
	return nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery,
	ch chan<- ethtypes.Log,
) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("not supported")
}

func testProof() *types.ZKProof {
	return &types.ZKProof{
		ID:        "p1",
		CircuitID: types.CircuitVerifiedBuilder,
		Proof: types.Groth16Proof{
			PiA:      []string{"11", "12", "1"},
			PiB:      [][]string{{"21", "22"}, {"23", "24"}, {"1", "0"}},
			PiC:      []string{"31", "32", "1"},
			Protocol: "groth16",
			Curve:    "bn128",
		},
		PublicSignals: []string{"41", "42"},
		Status:        types.ProofStatusReady,
		GeneratedAt:   time.Now(),
	}
}

func TestProofCalldata(t *testing.T) {
	c := qt.New(t)
	proof := testProof()

	cd, err := NewProofCalldata(proof.Proof, proof.PublicSignals)
	c.Assert(err, qt.IsNil)
	c.Assert(cd.A[0].Int64(), qt.Equals, int64(11))
	c.Assert(cd.A[1].Int64(), qt.Equals, int64(12))
	// G2 coordinates are swapped for the pairing precompile
	c.Assert(cd.B[0][0].Int64(), qt.Equals, int64(22))
	c.Assert(cd.B[0][1].Int64(), qt.Equals, int64(21))
	c.Assert(cd.B[1][0].Int64(), qt.Equals, int64(24))
	c.Assert(cd.B[1][1].Int64(), qt.Equals, int64(23))
	c.Assert(cd.C[0].Int64(), qt.Equals, int64(31))
	c.Assert(cd.Signals, qt.HasLen, 2)
	c.Assert(cd.Signals[1].Int64(), qt.Equals, int64(42))
}

func TestProofCalldataMalformed(t *testing.T) {
	c := qt.New(t)
	proof := testProof()
	proof.Proof.PiA = []string{"not-a-number", "12", "1"}
	_, err := NewProofCalldata(proof.Proof, proof.PublicSignals)
	c.Assert(err, qt.IsNotNil)

	proof = testProof()
	proof.Proof.PiB = [][]string{{"21"}}
	_, err = NewProofCalldata(proof.Proof, proof.PublicSignals)
	c.Assert(err, qt.IsNotNil)
}

func TestVerifyProofOnChain(t *testing.T) {
	c := qt.New(t)
	backend := &fakeBackend{verifyResult: true}
	client, err := NewVerifierClientWithBackend(backend, common.HexToAddress("0x01"))
	c.Assert(err, qt.IsNil)

	proof := testProof()
	result, err := client.VerifyProof(context.Background(), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Valid, qt.IsTrue)
	c.Assert(result.Method, qt.Equals, types.VerificationOnChain)
	c.Assert(result.GasUsed, qt.Equals, uint64(210000))
	c.Assert(result.CredentialID, qt.Not(qt.Equals), "")
	c.Assert(backend.calls, qt.Equals, 1)
	c.Assert(proof.Status, qt.Equals, types.ProofStatusVerified)
	c.Assert(proof.VerifiedAt, qt.IsNotNil)
}

func TestVerifyProofOnChainRejected(t *testing.T) {
	c := qt.New(t)
	backend := &fakeBackend{verifyResult: false}
	client, err := NewVerifierClientWithBackend(backend, common.HexToAddress("0x01"))
	c.Assert(err, qt.IsNil)

	result, err := client.VerifyProof(context.Background(), testProof())
	c.Assert(err, qt.IsNil)
	c.Assert(result.Valid, qt.IsFalse)
	c.Assert(result.Error, qt.Not(qt.Equals), "")
}

func TestVerifyProofOnChainExpired(t *testing.T) {
	c := qt.New(t)
	backend := &fakeBackend{verifyResult: true}
	client, err := NewVerifierClientWithBackend(backend, common.HexToAddress("0x01"))
	c.Assert(err, qt.IsNil)

	proof := testProof()
	expired := time.Now().Add(-time.Minute)
	proof.ExpiresAt = &expired
	result, err := client.VerifyProof(context.Background(), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Valid, qt.IsFalse)
	c.Assert(result.Error, qt.Equals, "proof expired")
	// the contract was never called
	c.Assert(backend.calls, qt.Equals, 0)
}

func TestAttestCredential(t *testing.T) {
	c := qt.New(t)
	backend := &fakeBackend{}
	client, err := NewVerifierClientWithBackend(backend, common.HexToAddress("0x01"))
	c.Assert(err, qt.IsNil)
	client.ChainID = 1337

	// attesting without a key fails
	_, err = client.AttestCredential(testProof())
	c.Assert(err, qt.IsNotNil)

	err = client.SetAccountPrivateKey("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d")
	c.Assert(err, qt.IsNil)
	c.Assert(client.AccountAddress().Hex(), qt.Not(qt.Equals), common.Address{}.Hex())

	hash, err := client.AttestCredential(testProof())
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.IsNotNil)
	c.Assert(backend.sentTx, qt.IsNotNil)
	c.Assert(backend.sentTx.Nonce(), qt.Equals, uint64(7))
}

func TestCredentialIDStable(t *testing.T) {
	c := qt.New(t)
	a := CredentialID(testProof())
	b := CredentialID(testProof())
	c.Assert(a, qt.Equals, b)

	other := testProof()
	other.PublicSignals = []string{"99"}
	c.Assert(CredentialID(other), qt.Not(qt.Equals), a)
}
