package claim

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ProveRequest is the raw claim submitted by a client. Nothing in it has been
// checked yet.
type ProveRequest struct {
	SSAddress  string `json:"ssAddress"`
	Signature  string `json:"signature"`
	EVMAddress string `json:"evmAddress"`
	Challenge  string `json:"challenge"`
	Amount     string `json:"amount"`
}

// ValidatedRequest holds the decoded, fixed-size form of a ProveRequest.
type ValidatedRequest struct {
	PublicKey [32]byte
	Signature [64]byte
	Challenge [32]byte
	// Amount is the claimed amount as a big-endian uint256.
	Amount    [32]byte
	Recipient common.Address
}

// AmountInt returns the claimed amount as a uint256.
func (v ValidatedRequest) AmountInt() *uint256.Int {
	return new(uint256.Int).SetBytes32(v.Amount[:])
}

// PublicKeyHex returns the 0x-prefixed hex form of the requester public key.
func (v ValidatedRequest) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(v.PublicKey[:])
}

// Fingerprint derives the proof cache key of a request from the fields that
// determine the proof: requester, recipient, amount and challenge. The
// signature is left out, so two valid signatures over the same claim share a
// fingerprint.
func Fingerprint(v ValidatedRequest) string {
	h := crypto.Keccak256(v.PublicKey[:], v.Recipient[:], v.Amount[:], v.Challenge[:])
	return hex.EncodeToString(h)
}
