package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Anchor contains batching, polling, and retry configuration for the
// submission and confirmation loops.
type Anchor struct {
	// BatchSize is the pending-job threshold that closes a batch.
	BatchSize int `toml:"batch_size"`
	// BatchMaxWait is the longest a claimed job waits before a partial
	// batch is closed anyway, in seconds.
	BatchMaxWait int `toml:"batch_max_wait"`
	// SubmitInterval is the submission loop poll interval in seconds.
	SubmitInterval int `toml:"submit_interval"`
	// ConfirmInterval is the confirmation loop poll interval in seconds.
	ConfirmInterval int `toml:"confirm_interval"`
	// BackoffBase and BackoffCap bound the transient-failure retry delay,
	// in seconds.
	BackoffBase int `toml:"backoff_base"`
	BackoffCap  int `toml:"backoff_cap"`
	// BackoffMaxExponent clamps the attempt exponent so the computed delay
	// cannot overflow regardless of attempt count.
	BackoffMaxExponent int `toml:"backoff_max_exponent"`
	// JitterMaxMillis is the upper bound of the uniform jitter added to
	// every backoff delay.
	JitterMaxMillis int `toml:"jitter_max_millis"`
	// ConfirmAttemptCeiling is the number of confirmation polls after which
	// a still-unconfirmed job is escalated to permanent failure.
	ConfirmAttemptCeiling int `toml:"confirm_attempt_ceiling"`
	// StaleClaimTimeout reclaims jobs stuck in claimed/submitting back to
	// pending after this many seconds without progress.
	StaleClaimTimeout int `toml:"stale_claim_timeout"`
}

// RPCTarget describes one JSON-RPC ledger endpoint.
type RPCTarget struct {
	ID       string `toml:"id"`
	Endpoint string `toml:"endpoint"`
	Network  string `toml:"network"`
	Timeout  int    `toml:"timeout"`
}

// Ledger selects and configures the anchoring provider. Provider is one of
// "stub", "rpc", or "fanout"; when unset the stub is used so the daemon can
// run without ledger connectivity.
type Ledger struct {
	Provider string      `toml:"provider"`
	RPC      []RPCTarget `toml:"rpc"`
}

// Ingest configures the optional Kafka evidence consumer.
type Ingest struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for anchord.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Anchor: batch thresholds, loop intervals, backoff bounds
//   - Ledger: provider selection and JSON-RPC endpoints
//   - Ingest: Kafka evidence consumer (disabled by default)
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Anchor  Anchor  `toml:"anchor"`
	Ledger  Ledger  `toml:"ledger"`
	Ingest  Ingest  `toml:"ingest"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/anchord/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A missing file is not
// an error; defaults apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("anchord.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath expands a leading ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
