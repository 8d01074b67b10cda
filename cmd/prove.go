package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"prover-api/internal/claim"
	"prover-api/internal/prover"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "Validate and prove a single request with the configured prover",
	Long:  "Reads one prove request as JSON, validates it and runs the configured prover once, printing the proof to stdout. Rate limits, the cache and the queue are bypassed.",
	RunE:  runProve,
}

type proveOutput struct {
	Fingerprint  string `json:"fingerprint"`
	ZKProof      string `json:"zkProof"`
	PublicValues string `json:"publicValues"`
	Verified     bool   `json:"verifiedOnChain"`
}

func init() {
	rootCmd.AddCommand(proveCmd)

	proveCmd.Flags().StringP("request", "r", "-", "Path to the request JSON file, - for stdin")
}

func readRequest(path string) (claim.ProveRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return claim.ProveRequest{}, err
	}

	var req claim.ProveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return claim.ProveRequest{}, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

func runProve(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	requestPath, _ := cmd.Flags().GetString("request")
	req, err := readRequest(requestPath)
	if err != nil {
		return err
	}

	validated, err := claim.Validate(req)
	if err != nil {
		return err
	}

	p, err := prover.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.ProofTimeout())
	defer cancelTimeout()

	logrus.Infof("proving claim | pubkey=%s recipient=%s amount=%s", validated.PublicKeyHex(), validated.Recipient.Hex(), validated.AmountInt().Dec())
	res, err := p.Prove(ctx, validated)
	if err != nil {
		return fmt.Errorf("proof failed: %w", err)
	}

	out := proveOutput{
		Fingerprint:  claim.Fingerprint(validated),
		ZKProof:      hexutil.Encode(res.Proof),
		PublicValues: hexutil.Encode(res.PublicValues),
	}

	client, _, verifier, err := chainClients(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}
	if verifier != nil {
		if err := verifier.Verify(ctx, res.Proof, res.PublicValues); err != nil {
			return err
		}
		out.Verified = true
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
