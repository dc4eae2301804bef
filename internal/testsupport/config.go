// Package testsupport provides shared helpers for building test
// configurations and stores.
package testsupport

import (
	"path/filepath"
	"testing"

	"anchord/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithProvider overrides the configured ledger provider.
func WithProvider(name string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Ledger.Provider = name
	}
}

// WithBatchSize overrides the submission batch size.
func WithBatchSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Anchor.BatchSize = size
	}
}
