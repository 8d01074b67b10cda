package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kelseyhightower/envconfig"

	yaml "gopkg.in/yaml.v2"
)

// Supported prover modes.
const (
	ProverModeMock = "mock"
	ProverModeExec = "exec"
)

type ServerConfig struct {
	Host             string   `yaml:"host" envconfig:"PROVER_SERVER_HOST"`
	Port             string   `yaml:"port" envconfig:"PROVER_SERVER_PORT"`
	BodyLimitBytes   int64    `yaml:"body_limit_bytes" envconfig:"PROVER_SERVER_BODY_LIMIT_BYTES"`
	ProxyCount       uint     `yaml:"proxy_count" envconfig:"PROVER_SERVER_PROXY_COUNT"`
	CORSOrigins      []string `yaml:"cors_origins" envconfig:"PROVER_SERVER_CORS_ORIGINS"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" envconfig:"PROVER_SERVER_READ_TIMEOUT_SECS"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" envconfig:"PROVER_SERVER_WRITE_TIMEOUT_SECS"`
}

type ProverConfig struct {
	// Mode selects the proof backend: "mock" or "exec".
	Mode    string   `yaml:"mode" envconfig:"PROVER_MODE"`
	Command string   `yaml:"command" envconfig:"PROVER_COMMAND"`
	Args    []string `yaml:"args" envconfig:"PROVER_ARGS"`
	// ProgramVKey is the 32-byte verification key of the claim program (0x-hex).
	ProgramVKey   string `yaml:"program_vkey" envconfig:"PROVER_PROGRAM_VKEY"`
	MockDelayMS   int    `yaml:"mock_delay_ms" envconfig:"PROVER_MOCK_DELAY_MS"`
	VerifyOnChain bool   `yaml:"verify_onchain" envconfig:"PROVER_VERIFY_ONCHAIN"`
}

type ChainConfig struct {
	RPCURL string `yaml:"rpc_url" envconfig:"PROVER_CHAIN_RPC_URL"`
	// ClaimContract enables the already-claimed check when set.
	ClaimContract string `yaml:"claim_contract" envconfig:"PROVER_CHAIN_CLAIM_CONTRACT"`
	// ClaimABI optionally points to an ABI JSON file replacing the built-in one.
	ClaimABI         string `yaml:"claim_abi" envconfig:"PROVER_CHAIN_CLAIM_ABI"`
	ClaimMethod      string `yaml:"claim_method" envconfig:"PROVER_CHAIN_CLAIM_METHOD"`
	VerifierContract string `yaml:"verifier_contract" envconfig:"PROVER_CHAIN_VERIFIER_CONTRACT"`
	RPCTimeoutSecs   int    `yaml:"rpc_timeout_secs" envconfig:"PROVER_CHAIN_RPC_TIMEOUT_SECS"`
	// CallsPerSecond paces outgoing RPC calls. Zero means unlimited.
	CallsPerSecond float64 `yaml:"calls_per_second" envconfig:"PROVER_CHAIN_CALLS_PER_SECOND"`
}

type RetryConfig struct {
	Attempts int `yaml:"attempts" envconfig:"PROVER_RETRY_ATTEMPTS"`
	DelayMS  int `yaml:"delay_ms" envconfig:"PROVER_RETRY_DELAY_MS"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity" envconfig:"PROVER_QUEUE_CAPACITY"`
	// Workers defines how many proofs may be computed concurrently.
	// If not set, it defaults to the number of available CPUs.
	Workers          int `yaml:"workers" envconfig:"PROVER_QUEUE_WORKERS"`
	ProofTimeoutSecs int `yaml:"proof_timeout_secs" envconfig:"PROVER_QUEUE_PROOF_TIMEOUT_SECS"`
}

type CacheConfig struct {
	TTLSecs    int `yaml:"ttl_secs" envconfig:"PROVER_CACHE_TTL_SECS"`
	MaxEntries int `yaml:"max_entries" envconfig:"PROVER_CACHE_MAX_ENTRIES"`
}

type RateLimitConfig struct {
	WindowSecs  int `yaml:"window_secs" envconfig:"PROVER_RATE_LIMIT_WINDOW_SECS"`
	MaxRequests int `yaml:"max_requests" envconfig:"PROVER_RATE_LIMIT_MAX_REQUESTS"`
	// IPMaxRequests overrides MaxRequests for the per-IP limiter.
	IPMaxRequests int `yaml:"ip_max_requests" envconfig:"PROVER_RATE_LIMIT_IP_MAX_REQUESTS"`
}

type JobsConfig struct {
	TTLSecs             int `yaml:"ttl_secs" envconfig:"PROVER_JOBS_TTL_SECS"`
	CleanupIntervalSecs int `yaml:"cleanup_interval_secs" envconfig:"PROVER_JOBS_CLEANUP_INTERVAL_SECS"`
}

type EligibilityConfig struct {
	File string `yaml:"file" envconfig:"PROVER_ELIGIBILITY_FILE"`
}

// ArchiveConfig enables the CSV archive of completed proofs when Dir is set.
type ArchiveConfig struct {
	Dir string `yaml:"dir" envconfig:"PROVER_ARCHIVE_DIR"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"PROVER_LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"PROVER_LOG_FORMAT"`
	File       string `yaml:"file" envconfig:"PROVER_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"PROVER_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"PROVER_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"PROVER_LOG_MAX_AGE_DAYS"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Prover      ProverConfig      `yaml:"prover"`
	Chain       ChainConfig       `yaml:"chain"`
	Retry       RetryConfig       `yaml:"retry"`
	Queue       QueueConfig       `yaml:"queue"`
	Cache       CacheConfig       `yaml:"cache"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads the configuration file located at the given path, applies
// environment overrides and defaults, and validates the result. An empty
// path yields a configuration built from environment and defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", absPath, err)
		}

		// Relative file references are resolved against the config directory.
		cfgDir := filepath.Dir(absPath)
		cfg.Eligibility.File = resolvePath(cfgDir, cfg.Eligibility.File)
		cfg.Chain.ClaimABI = resolvePath(cfgDir, cfg.Chain.ClaimABI)
		cfg.Archive.Dir = resolvePath(cfgDir, cfg.Archive.Dir)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.BodyLimitBytes <= 0 {
		c.Server.BodyLimitBytes = 16 * 1024
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.ReadTimeoutSecs <= 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs <= 0 {
		c.Server.WriteTimeoutSecs = 15
	}

	if c.Prover.Mode == "" {
		c.Prover.Mode = ProverModeMock
	}

	if c.Chain.ClaimMethod == "" {
		c.Chain.ClaimMethod = "hasClaimed"
	}
	if c.Chain.RPCTimeoutSecs <= 0 {
		c.Chain.RPCTimeoutSecs = 10
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.DelayMS == 0 {
		c.Retry.DelayMS = 1500
	}

	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 100
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = runtime.NumCPU()
		if c.Queue.Workers < 1 {
			c.Queue.Workers = 1
		}
	}
	if c.Queue.ProofTimeoutSecs <= 0 {
		c.Queue.ProofTimeoutSecs = 300
	}

	if c.Cache.TTLSecs <= 0 {
		c.Cache.TTLSecs = 3600
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10_000
	}

	if c.RateLimit.WindowSecs <= 0 {
		c.RateLimit.WindowSecs = 60
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 5
	}
	if c.RateLimit.IPMaxRequests == 0 {
		c.RateLimit.IPMaxRequests = c.RateLimit.MaxRequests
	}

	if c.Jobs.TTLSecs <= 0 {
		c.Jobs.TTLSecs = 3600
	}
	if c.Jobs.CleanupIntervalSecs <= 0 {
		c.Jobs.CleanupIntervalSecs = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 28
	}
}

// Validate checks cross-field constraints. It expects defaults to be applied.
func (c *Config) Validate() error {
	switch c.Prover.Mode {
	case ProverModeMock:
	case ProverModeExec:
		if c.Prover.Command == "" {
			return fmt.Errorf("prover.command is required when prover mode is exec")
		}
	default:
		return fmt.Errorf("unsupported prover mode: %s", c.Prover.Mode)
	}

	if c.Prover.ProgramVKey != "" {
		if _, err := c.ProgramVKey(); err != nil {
			return err
		}
	}

	if c.Chain.ClaimContract != "" {
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required when chain.claim_contract is set")
		}
		if !common.IsHexAddress(c.Chain.ClaimContract) {
			return fmt.Errorf("chain.claim_contract is not a valid address: %s", c.Chain.ClaimContract)
		}
	}

	if c.Prover.VerifyOnChain {
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required when prover.verify_onchain is enabled")
		}
		if !common.IsHexAddress(c.Chain.VerifierContract) {
			return fmt.Errorf("chain.verifier_contract must be a valid address when prover.verify_onchain is enabled")
		}
		if c.Prover.ProgramVKey == "" {
			return fmt.Errorf("prover.program_vkey is required when prover.verify_onchain is enabled")
		}
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Chain.CallsPerSecond < 0 {
		return fmt.Errorf("chain.calls_per_second must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported logging format: %s", c.Logging.Format)
	}

	return nil
}

// ProgramVKey decodes prover.program_vkey. A missing key yields the zero hash.
func (c *Config) ProgramVKey() (common.Hash, error) {
	if c.Prover.ProgramVKey == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(c.Prover.ProgramVKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("prover.program_vkey: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("prover.program_vkey must be %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func (c *Config) ProofTimeout() time.Duration {
	return time.Duration(c.Queue.ProofTimeoutSecs) * time.Second
}

func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Chain.RPCTimeoutSecs) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSecs) * time.Second
}

func (c *Config) JobsTTL() time.Duration {
	return time.Duration(c.Jobs.TTLSecs) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Jobs.CleanupIntervalSecs) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSecs) * time.Second
}

func (c *Config) MockDelay() time.Duration {
	return time.Duration(c.Prover.MockDelayMS) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMS) * time.Millisecond
}
