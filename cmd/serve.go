package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"prover-api/internal/api"
	"prover-api/internal/cache"
	"prover-api/internal/config"
	"prover-api/internal/eligibility"
	"prover-api/internal/jobs"
	"prover-api/internal/logging"
	"prover-api/internal/metrics"
	"prover-api/internal/prover"
	"prover-api/internal/ratelimit"
	"prover-api/internal/rpc"
	"prover-api/internal/sink"
	"prover-api/internal/worker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the prover HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// setup loads the configuration and configures the global logger.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return cfg, func() { _ = closer.Close() }, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logrus.Info("interrupt received, shutting down gracefully…")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// chainClients dials the RPC endpoint when the claim check or on-chain
// verification is enabled. Both results are nil otherwise.
func chainClients(ctx context.Context, cfg *config.Config) (*rpc.Client, *rpc.ClaimChecker, *rpc.OnChainVerifier, error) {
	if cfg.Chain.ClaimContract == "" && !cfg.Prover.VerifyOnChain {
		return nil, nil, nil, nil
	}

	client, err := rpc.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	var checker *rpc.ClaimChecker
	if cfg.Chain.ClaimContract != "" {
		claimABI, err := rpc.LoadClaimABI(cfg.Chain.ClaimABI)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		checker, err = rpc.NewClaimChecker(client, common.HexToAddress(cfg.Chain.ClaimContract), claimABI, cfg.Chain.ClaimMethod)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
	}

	var verifier *rpc.OnChainVerifier
	if cfg.Prover.VerifyOnChain {
		vkey, err := cfg.ProgramVKey()
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		verifier = rpc.NewOnChainVerifier(client, common.HexToAddress(cfg.Chain.VerifierContract), vkey)
	}

	return client, checker, verifier, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := prover.New(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	components := api.Components{
		Registry:      jobs.NewRegistry(),
		Queue:         jobs.NewQueue(cfg.Queue.Capacity),
		Cache:         cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries),
		PubkeyLimiter: ratelimit.New(cfg.RateLimitWindow(), cfg.RateLimit.MaxRequests),
		IPLimiter:     ratelimit.New(cfg.RateLimitWindow(), cfg.RateLimit.IPMaxRequests),
		Metrics:       m,
	}

	if cfg.Eligibility.File != "" {
		store, err := eligibility.Load(cfg.Eligibility.File)
		if err != nil {
			return err
		}
		components.Eligibility = store
	}

	client, checker, onChain, err := chainClients(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}
	if checker != nil {
		components.Claims = checker
	}
	var verifier worker.Verifier
	if onChain != nil {
		verifier = onChain
	}

	pool := worker.New(cfg, components.Queue, components.Registry, components.Cache, p, verifier, m)
	if cfg.Archive.Dir != "" {
		csvSink, err := sink.NewCSVSink(cfg.Archive.Dir)
		if err != nil {
			return err
		}
		defer csvSink.Close()
		pool.SetArchive(sink.NewRetrySink(csvSink, cfg.Retry.Attempts, cfg.RetryDelay()))
		logrus.Infof("archiving completed proofs to %s", cfg.Archive.Dir)
	}
	pool.Start(ctx)

	svc := api.NewService(cfg, components)
	svc.StartCleanup(ctx)

	logrus.Infof("prover API starting | mode=%s workers=%d queue=%d claim_check=%t verify_onchain=%t",
		cfg.Prover.Mode, cfg.Queue.Workers, cfg.Queue.Capacity, checker != nil, onChain != nil)

	srv := api.NewServer(cfg, svc, pool, m)
	runErr := srv.Run(ctx)

	components.Queue.Close()
	cancel()
	pool.Wait()

	if runErr != nil {
		logrus.Errorf("server stopped with error: %v", runErr)
		return runErr
	}
	logrus.Info("shutdown complete")
	return nil
}
