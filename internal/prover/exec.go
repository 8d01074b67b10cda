package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"prover-api/internal/claim"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// execInput is written as a single JSON document to the prover's stdin.
type execInput struct {
	PublicKey   string `json:"publicKey"`
	Signature   string `json:"signature"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
	Challenge   string `json:"challenge"`
	ProgramVKey string `json:"programVKey"`
}

// execOutput is expected as a single JSON document on the prover's stdout.
type execOutput struct {
	Proof        string `json:"proof"`
	PublicValues string `json:"publicValues"`
}

// ExecProver runs an external prover binary per claim.
type ExecProver struct {
	command string
	args    []string
	vkey    common.Hash
}

func NewExec(command string, args []string, vkey common.Hash) *ExecProver {
	return &ExecProver{command: command, args: args, vkey: vkey}
}

func (e *ExecProver) Prove(ctx context.Context, req claim.ValidatedRequest) (Result, error) {
	in, err := json.Marshal(execInput{
		PublicKey:   hexutil.Encode(req.PublicKey[:]),
		Signature:   hexutil.Encode(req.Signature[:]),
		Recipient:   req.Recipient.Hex(),
		Amount:      req.AmountInt().Dec(),
		Challenge:   hexutil.Encode(req.Challenge[:]),
		ProgramVKey: e.vkey.Hex(),
	})
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Result{}, fmt.Errorf("prover process failed: %w", err)
		}
		return Result{}, fmt.Errorf("prover process failed: %w: %s", err, msg)
	}
	if stderr.Len() > 0 {
		logrus.Debugf("prover stderr: %s", strings.TrimSpace(stderr.String()))
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("failed to decode prover output: %w", err)
	}

	proof, err := hexutil.Decode(withPrefix(out.Proof))
	if err != nil {
		return Result{}, fmt.Errorf("invalid proof in prover output: %w", err)
	}
	pv, err := hexutil.Decode(withPrefix(out.PublicValues))
	if err != nil {
		return Result{}, fmt.Errorf("invalid public values in prover output: %w", err)
	}
	return Result{Proof: proof, PublicValues: pv}, nil
}

func withPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
