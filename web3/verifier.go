// Package web3 verifies credential proofs against a Groth16 verifier contract
// deployed on an EVM chain and optionally attests verified credentials with a
// transaction.
package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/types"
)

const web3QueryTimeout = 10 * time.Second

// verifierABI is the interface of the deployed Groth16 verifier contract.
const verifierABI = `[
	{
		"name": "verifyProof",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "a", "type": "uint256[2]"},
			{"name": "b", "type": "uint256[2][2]"},
			{"name": "c", "type": "uint256[2]"},
			{"name": "input", "type": "uint256[]"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "attestCredential",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "credentialId", "type": "bytes32"}],
		"outputs": []
	}
]`

// VerifierClient talks to the verifier contract of one circuit family.
type VerifierClient struct {
	ChainID  uint64
	backend  bind.ContractBackend
	contract *bind.BoundContract
	address  common.Address
	parsed   abi.ABI
	privKey  *ecdsa.PrivateKey
	account  common.Address
}

// NewVerifierClient dials the web3 endpoint and binds the verifier contract
// at the given address.
func NewVerifierClient(ctx context.Context, web3rpc string, contractAddr common.Address) (*VerifierClient, error) {
	client, err := ethclient.DialContext(ctx, web3rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to dial web3 endpoint: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chainID: %w", err)
	}
	vc, err := NewVerifierClientWithBackend(client, contractAddr)
	if err != nil {
		return nil, err
	}
	vc.ChainID = chainID.Uint64()
	return vc, nil
}

// NewVerifierClientWithBackend binds the verifier contract over an existing
// backend.
func NewVerifierClientWithBackend(backend bind.ContractBackend, contractAddr common.Address) (*VerifierClient, error) {
	parsed, err := abi.JSON(strings.NewReader(verifierABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse verifier ABI: %w", err)
	}
	return &VerifierClient{
		backend:  backend,
		contract: bind.NewBoundContract(contractAddr, parsed, backend, backend, backend),
		address:  contractAddr,
		parsed:   parsed,
	}, nil
}

// SetAccountPrivateKey sets the private key to be used for signing attestation
// transactions.
func (c *VerifierClient) SetAccountPrivateKey(hexPrivKey string) error {
	var err error
	c.privKey, err = crypto.HexToECDSA(hexPrivKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.account = crypto.PubkeyToAddress(c.privKey.PublicKey)
	return nil
}

// AccountAddress returns the address of the account used to sign transactions.
func (c *VerifierClient) AccountAddress() common.Address {
	return c.account
}

// VerifyProof submits the proof to the verifier contract as a read-only call.
// An invalid proof is reported through the result, not the error; errors are
// reserved for transport or encoding failures. The result carries the gas the
// call would cost and a credential identifier derived from the calldata.
func (c *VerifierClient) VerifyProof(ctx context.Context, proof *types.ZKProof) (*types.VerificationResult, error) {
	if proof == nil {
		return nil, fmt.Errorf("nil proof")
	}
	result := &types.VerificationResult{
		Timestamp: time.Now(),
		Method:    types.VerificationOnChain,
	}
	if proof.Expired(result.Timestamp) {
		result.Error = "proof expired"
		return result, nil
	}
	cd, err := NewProofCalldata(proof.Proof, proof.PublicSignals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calldata: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out,
		"verifyProof", cd.A, cd.B, cd.C, cd.Signals); err != nil {
		return nil, fmt.Errorf("failed to call verifier contract: %w", err)
	}
	valid, ok := out[0].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected verifier contract return type %T", out[0])
	}
	result.Valid = valid
	result.CredentialID = CredentialID(proof).Hex()
	if !valid {
		result.Error = "proof rejected by verifier contract"
		return result, nil
	}
	if gas, err := c.estimateGas(callCtx, cd); err != nil {
		log.Debugw("gas estimation failed", "err", err.Error())
	} else {
		result.GasUsed = gas
	}
	proof.Status = types.ProofStatusVerified
	if proof.VerifiedAt == nil {
		verifiedAt := result.Timestamp
		proof.VerifiedAt = &verifiedAt
	}
	return result, nil
}

// AttestCredential submits a transaction recording the credential on-chain.
// It returns the transaction hash. A private key must be configured.
func (c *VerifierClient) AttestCredential(proof *types.ZKProof) (*common.Hash, error) {
	txOpts, err := c.authTransactOpts()
	if err != nil {
		return nil, fmt.Errorf("failed to create transact options: %w", err)
	}
	tx, err := c.contract.Transact(txOpts, "attestCredential", CredentialID(proof))
	if err != nil {
		return nil, fmt.Errorf("failed to attest credential: %w", err)
	}
	hash := tx.Hash()
	log.Infow("credential attested", "proof", proof.ID, "tx", hash.Hex())
	return &hash, nil
}

// CredentialID derives a stable on-chain identifier for the proof from its
// public signals and circuit.
func CredentialID(proof *types.ZKProof) common.Hash {
	data := []byte(proof.CircuitID)
	for _, s := range proof.PublicSignals {
		data = append(data, []byte(s)...)
	}
	return crypto.Keccak256Hash(data)
}

func (c *VerifierClient) estimateGas(ctx context.Context, cd *ProofCalldata) (uint64, error) {
	input, err := c.parsed.Pack("verifyProof", cd.A, cd.B, cd.C, cd.Signals)
	if err != nil {
		return 0, err
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{To: &c.address, Data: input})
}

// authTransactOpts creates the transact options with the configured private
// key. It sets the nonce, gas tip cap and gas limit.
func (c *VerifierClient) authTransactOpts() (*bind.TransactOpts, error) {
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	bChainID := new(big.Int).SetUint64(c.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(c.privKey, bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), web3QueryTimeout)
	defer cancel()
	log.Debugw("getting nonce", "address", c.account.Hex())
	nonce, err := c.backend.PendingNonceAt(ctx, c.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = c.backend.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.GasLimit = 1000000
	return auth, nil
}
