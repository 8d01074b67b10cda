package rpc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const defaultClaimABI = `[{
	"type": "function",
	"name": "hasClaimed",
	"stateMutability": "view",
	"inputs": [{"name": "pubkey", "type": "bytes32"}],
	"outputs": [{"name": "", "type": "bool"}]
}]`

// LoadClaimABI parses the ABI JSON file at path, or the built-in
// hasClaimed(bytes32) ABI when path is empty.
func LoadClaimABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(defaultClaimABI))
	}

	abiBytes, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read claim abi file: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(abiBytes))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse claim abi: %w", err)
	}
	return parsed, nil
}

// ClaimChecker asks the claim contract whether a public key has already
// claimed its migration.
type ClaimChecker struct {
	client   *Client
	contract common.Address
	abi      abi.ABI
	method   string
}

// NewClaimChecker validates that method takes a single bytes32 and returns a
// bool before building the checker.
func NewClaimChecker(client *Client, contract common.Address, contractABI abi.ABI, method string) (*ClaimChecker, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method '%s' not found in claim abi", method)
	}
	if len(m.Inputs) != 1 || m.Inputs[0].Type.String() != "bytes32" {
		return nil, fmt.Errorf("method '%s' must take a single bytes32 argument", method)
	}
	if len(m.Outputs) != 1 || m.Outputs[0].Type.T != abi.BoolTy {
		return nil, fmt.Errorf("method '%s' must return a single bool", method)
	}

	return &ClaimChecker{
		client:   client,
		contract: contract,
		abi:      contractABI,
		method:   method,
	}, nil
}

func (c *ClaimChecker) HasClaimed(ctx context.Context, pubkey [32]byte) (bool, error) {
	input, err := c.abi.Pack(c.method, pubkey)
	if err != nil {
		return false, err
	}

	out, err := c.client.Call(ctx, c.contract, input)
	if err != nil {
		return false, fmt.Errorf("claim status call failed: %w", err)
	}

	values, err := c.abi.Unpack(c.method, out)
	if err != nil {
		return false, fmt.Errorf("failed to decode claim status: %w", err)
	}
	claimed, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected claim status type %T", values[0])
	}
	return claimed, nil
}
