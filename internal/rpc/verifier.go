package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrVerificationFailed is returned when the verifier contract rejects a proof.
var ErrVerificationFailed = errors.New("on-chain proof verification failed")

const verifierABI = `[{
	"type": "function",
	"name": "verifyProof",
	"stateMutability": "view",
	"inputs": [
		{"name": "programVKey", "type": "bytes32"},
		{"name": "publicValues", "type": "bytes"},
		{"name": "proofBytes", "type": "bytes"}
	],
	"outputs": []
}]`

var parsedVerifierABI = mustParseABI(verifierABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// OnChainVerifier checks proofs against the deployed verifier contract. The
// contract reverts on an invalid proof and returns nothing otherwise.
type OnChainVerifier struct {
	client   *Client
	contract common.Address
	vkey     common.Hash
}

func NewOnChainVerifier(client *Client, contract common.Address, vkey common.Hash) *OnChainVerifier {
	return &OnChainVerifier{client: client, contract: contract, vkey: vkey}
}

func (v *OnChainVerifier) Verify(ctx context.Context, proof, publicValues []byte) error {
	input, err := parsedVerifierABI.Pack("verifyProof", v.vkey, publicValues, proof)
	if err != nil {
		return err
	}

	if _, err := v.client.Call(ctx, v.contract, input); err != nil {
		if IsRevert(err) {
			return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return fmt.Errorf("verifier call failed: %w", err)
	}
	return nil
}
