package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(16*1024), cfg.Server.BodyLimitBytes)
	assert.Equal(t, ProverModeMock, cfg.Prover.Mode)
	assert.Equal(t, 100, cfg.Queue.Capacity)
	assert.Equal(t, max(runtime.NumCPU(), 1), cfg.Queue.Workers)
	assert.Equal(t, 300*time.Second, cfg.ProofTimeout())
	assert.Equal(t, 10*time.Second, cfg.RPCTimeout())
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 1500, cfg.Retry.DelayMS)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, time.Hour, cfg.JobsTTL())
	assert.Equal(t, time.Minute, cfg.RateLimitWindow())
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 5, cfg.RateLimit.IPMaxRequests)
	assert.Equal(t, "hasClaimed", cfg.Chain.ClaimMethod)
}

func TestLoadFileAndRelativePaths(t *testing.T) {
	p := writeConfig(t, `
server:
  port: "9000"
queue:
  capacity: 2
  workers: 4
  proof_timeout_secs: 30
eligibility:
  file: eligible.csv
archive:
  dir: archive
rate_limit:
  window_secs: 10
  max_requests: 3
  ip_max_requests: 20
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Queue.Capacity)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 30*time.Second, cfg.ProofTimeout())
	assert.Equal(t, filepath.Join(filepath.Dir(p), "eligible.csv"), cfg.Eligibility.File)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "archive"), cfg.Archive.Dir)
	assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 20, cfg.RateLimit.IPMaxRequests)
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeConfig(t, `
queue:
  capacity: 2
`)
	t.Setenv("PROVER_QUEUE_CAPACITY", "7")
	t.Setenv("PROVER_SERVER_PORT", "9999")
	t.Setenv("PROVER_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Queue.Capacity)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown prover mode",
			mutate:  func(c *Config) { c.Prover.Mode = "gpu" },
			wantErr: "unsupported prover mode",
		},
		{
			name:    "exec without command",
			mutate:  func(c *Config) { c.Prover.Mode = ProverModeExec },
			wantErr: "prover.command is required",
		},
		{
			name:    "claim contract without rpc",
			mutate:  func(c *Config) { c.Chain.ClaimContract = "0x00000000000000000000000000000000000000aa" },
			wantErr: "chain.rpc_url is required",
		},
		{
			name: "claim contract not an address",
			mutate: func(c *Config) {
				c.Chain.RPCURL = "http://localhost:8545"
				c.Chain.ClaimContract = "0x1234"
			},
			wantErr: "not a valid address",
		},
		{
			name: "onchain verify without vkey",
			mutate: func(c *Config) {
				c.Prover.VerifyOnChain = true
				c.Chain.RPCURL = "http://localhost:8545"
				c.Chain.VerifierContract = "0x00000000000000000000000000000000000000bb"
			},
			wantErr: "prover.program_vkey is required",
		},
		{
			name:    "short vkey",
			mutate:  func(c *Config) { c.Prover.ProgramVKey = "0x1234" },
			wantErr: "must be 32 bytes",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "unsupported logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
