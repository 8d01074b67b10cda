package prover

import (
	"context"
	"time"

	"prover-api/internal/claim"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MockProver produces deterministic stand-in proofs: the proof bytes are
// keccak256(vkey || publicValues). It exists for local development and
// tests, never for production claims.
type MockProver struct {
	vkey  common.Hash
	delay time.Duration
}

func NewMock(vkey common.Hash, delay time.Duration) *MockProver {
	return &MockProver{vkey: vkey, delay: delay}
}

func (m *MockProver) Prove(ctx context.Context, req claim.ValidatedRequest) (Result, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	pv, err := EncodePublicValues(req)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Proof:        crypto.Keccak256(m.vkey.Bytes(), pv),
		PublicValues: pv,
	}, nil
}
