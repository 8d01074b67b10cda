package claim

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate turns a raw request into a ValidatedRequest. Checks run in a fixed
// order and the first failure is returned as a *ValidationError.
func Validate(req ProveRequest) (ValidatedRequest, error) {
	var v ValidatedRequest

	fields := []struct {
		name  string
		value string
	}{
		{"ssAddress", req.SSAddress},
		{"signature", req.Signature},
		{"evmAddress", req.EVMAddress},
		{"challenge", req.Challenge},
		{"amount", req.Amount},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return v, invalid(f.name, "must not be empty")
		}
	}

	amount := strings.TrimSpace(req.Amount)
	if !isDecimal(amount) {
		return v, invalid("amount", "must be a non-negative base-10 integer")
	}

	_, pubkey, err := DecodeSS58(strings.TrimSpace(req.SSAddress))
	if err != nil {
		return v, invalid("ssAddress", "invalid SS58 address: %v", err)
	}
	v.PublicKey = pubkey

	sig, err := decodeHex(req.Signature)
	if err != nil {
		return v, invalid("signature", "invalid hex: %v", err)
	}
	if len(sig) != len(v.Signature) {
		return v, invalid("signature", "must be %d bytes, got %d", len(v.Signature), len(sig))
	}
	copy(v.Signature[:], sig)

	recipient := strings.TrimSpace(req.EVMAddress)
	if !common.IsHexAddress(recipient) {
		return v, invalid("evmAddress", "must be a %d-byte hex address", common.AddressLength)
	}
	v.Recipient = common.HexToAddress(recipient)

	challenge, err := decodeHex(req.Challenge)
	if err != nil {
		return v, invalid("challenge", "invalid hex: %v", err)
	}
	if len(challenge) != len(v.Challenge) {
		return v, invalid("challenge", "must be %d bytes, got %d", len(v.Challenge), len(challenge))
	}
	copy(v.Challenge[:], challenge)

	n, err := uint256.FromDecimal(amount)
	if err != nil {
		return v, invalid("amount", "does not fit in 256 bits: %v", err)
	}
	v.Amount = n.Bytes32()

	return v, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// decodeHex accepts hex with or without the 0x prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
