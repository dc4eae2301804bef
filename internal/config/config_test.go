package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"anchord/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Ledger.Provider != "stub" {
		t.Fatalf("default provider = %q, want stub", cfg.Ledger.Provider)
	}
	if cfg.Anchor.BatchSize != 64 || cfg.Anchor.BackoffCap != 300 {
		t.Fatalf("unexpected anchor defaults: %+v", cfg.Anchor)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
[anchor]
batch_size = 8
batch_max_wait = 10

[ledger]
provider = " RPC "

[[ledger.rpc]]
id = " etherlink "
endpoint = " https://node.example.com "
network = "testnet"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%s", exists, resolved)
	}
	if cfg.Anchor.BatchSize != 8 {
		t.Fatalf("batch_size = %d, want 8", cfg.Anchor.BatchSize)
	}
	if cfg.Ledger.Provider != "rpc" {
		t.Fatalf("provider = %q, want rpc", cfg.Ledger.Provider)
	}
	if cfg.Ledger.RPC[0].ID != "etherlink" || cfg.Ledger.RPC[0].Endpoint != "https://node.example.com" {
		t.Fatalf("rpc target not normalized: %+v", cfg.Ledger.RPC[0])
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"zero batch size", "[anchor]\nbatch_size = 0\n"},
		{"cap below base", "[anchor]\nbackoff_base = 60\nbackoff_cap = 5\n"},
		{"unknown provider", "[ledger]\nprovider = \"etcd\"\n"},
		{"rpc without targets", "[ledger]\nprovider = \"rpc\"\n"},
		{"fanout duplicate ids", `
[ledger]
provider = "fanout"
[[ledger.rpc]]
id = "a"
endpoint = "https://x"
[[ledger.rpc]]
id = "a"
endpoint = "https://y"
`},
		{"ingest without topic", "[ingest]\nenabled = true\nbrokers = [\"localhost:9092\"]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample config should exist")
	}
	if cfg.Ledger.Provider != "stub" {
		t.Fatalf("sample provider = %q, want stub", cfg.Ledger.Provider)
	}
}
