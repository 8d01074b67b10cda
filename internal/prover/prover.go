// Package prover wraps the expensive proof primitive behind a small
// interface so the worker pool can drive a mock backend in development and
// an external prover binary in production.
package prover

import (
	"context"
	"fmt"

	"prover-api/internal/claim"
	"prover-api/internal/config"
)

// Result is the raw output of a proof computation.
type Result struct {
	Proof        []byte
	PublicValues []byte
}

// Prover computes a proof for one validated claim. Implementations may run
// for minutes and are not expected to honour ctx promptly.
type Prover interface {
	Prove(ctx context.Context, req claim.ValidatedRequest) (Result, error)
}

// New builds the prover selected by cfg.Prover.Mode.
func New(cfg *config.Config) (Prover, error) {
	vkey, err := cfg.ProgramVKey()
	if err != nil {
		return nil, err
	}

	switch cfg.Prover.Mode {
	case config.ProverModeMock, "":
		return NewMock(vkey, cfg.MockDelay()), nil
	case config.ProverModeExec:
		return NewExec(cfg.Prover.Command, cfg.Prover.Args, vkey), nil
	default:
		return nil, fmt.Errorf("unsupported prover mode: %s", cfg.Prover.Mode)
	}
}
