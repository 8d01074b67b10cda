package prover

import (
	"fmt"
	"math/big"

	"prover-api/internal/claim"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PublicValues is what a claim proof commits to.
type PublicValues struct {
	PublicKey [32]byte
	Recipient common.Address
	Amount    *big.Int
	Challenge [32]byte
}

var publicValuesArgs = mustArguments("bytes32", "address", "uint256", "bytes32")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %q: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// EncodePublicValues ABI-encodes the committed values of req as the tuple
// (bytes32 pubkey, address recipient, uint256 amount, bytes32 challenge).
func EncodePublicValues(req claim.ValidatedRequest) ([]byte, error) {
	return publicValuesArgs.Pack(
		req.PublicKey,
		req.Recipient,
		req.AmountInt().ToBig(),
		req.Challenge,
	)
}

func DecodePublicValues(data []byte) (PublicValues, error) {
	values, err := publicValuesArgs.Unpack(data)
	if err != nil {
		return PublicValues{}, fmt.Errorf("failed to decode public values: %w", err)
	}
	if len(values) != 4 {
		return PublicValues{}, fmt.Errorf("failed to decode public values: got %d fields", len(values))
	}

	var (
		pv PublicValues
		ok bool
	)
	if pv.PublicKey, ok = values[0].([32]byte); !ok {
		return PublicValues{}, fmt.Errorf("public values: unexpected pubkey type %T", values[0])
	}
	if pv.Recipient, ok = values[1].(common.Address); !ok {
		return PublicValues{}, fmt.Errorf("public values: unexpected recipient type %T", values[1])
	}
	if pv.Amount, ok = values[2].(*big.Int); !ok {
		return PublicValues{}, fmt.Errorf("public values: unexpected amount type %T", values[2])
	}
	if pv.Challenge, ok = values[3].([32]byte); !ok {
		return PublicValues{}, fmt.Errorf("public values: unexpected challenge type %T", values[3])
	}
	return pv, nil
}
