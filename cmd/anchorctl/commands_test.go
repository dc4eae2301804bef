package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anchord/internal/api"
	"anchord/internal/config"
	"anchord/internal/merkle"
	"anchord/internal/outbox"
	"anchord/internal/testsupport"
)

func TestSubmitAndQueueList(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBatchSize(100))

	payload := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(payload, []byte(`{"finding":"ok"}`), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	out, _, err := runCLI(t, []string{"submit", payload, "--id", "ev-report"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Enqueued ev-report")
	requireContains(t, out, "status: pending")

	out, _, err = runCLI(t, []string{"submit", payload}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	requireContains(t, out, "already enqueued as ev-report")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "ev-report")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	requireContains(t, out, "Queue is empty.")

	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.addr, env.configPath); err == nil {
		t.Fatal("expected error for unknown status")
	}

	if _, _, err := runCLI(t, []string{"submit"}, env.addr, env.configPath); err == nil {
		t.Fatal("expected error when neither file nor --digest given")
	}
}

func TestStatusAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBatchSize(100))
	testsupport.MustCreateJob(t, env.store, "status-cli")

	out, _, err := runCLI(t, []string{"status"}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running")
	requireContains(t, out, "pending")
}

func TestStatusFallsBackToStore(t *testing.T) {
	store, configPath := setupStoreOnlyEnv(t)
	testsupport.MustCreateJob(t, store, "offline")

	out, _, err := runCLI(t, []string{"status"}, "", configPath)
	if err != nil {
		t.Fatalf("status fallback: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "pending")
}

func TestQueueRetryAndClear(t *testing.T) {
	store, configPath := setupStoreOnlyEnv(t)
	job := testsupport.MustCreateJob(t, store, "retry-cli")
	if _, err := store.MarkJobsFailed(context.Background(), "provider rejected root", job.ID); err != nil {
		t.Fatalf("MarkJobsFailed: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, "", configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Requeued 1")

	reloaded, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if reloaded.Status != outbox.StatusPending {
		t.Fatalf("status = %s, want pending", reloaded.Status)
	}

	if _, _, err := runCLI(t, []string{"queue", "clear"}, "", configPath); err == nil {
		t.Fatal("expected clear without --force to fail")
	}

	if _, err := store.MarkJobsFailed(context.Background(), "gone for good", job.ID); err != nil {
		t.Fatalf("MarkJobsFailed: %v", err)
	}
	out, _, err = runCLI(t, []string{"queue", "clear", "--force"}, "", configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 1")
}

func TestVerifyEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBatchSize(1), func(cfg *config.Config) {
		cfg.Anchor.SubmitInterval = 1
		cfg.Anchor.ConfirmInterval = 1
	})
	job := testsupport.MustCreateJob(t, env.store, "verify-cli")

	waitFor(t, 10*time.Second, func() bool {
		reloaded, err := env.store.GetJob(context.Background(), job.ID)
		return err == nil && reloaded.Status == outbox.StatusConfirmed
	})

	out, _, err := runCLI(t, []string{"verify", job.EvidenceID}, env.addr, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "Proof:    VALID")
	requireContains(t, out, "Anchor:   stub")
}

func TestVerifyBundleLocally(t *testing.T) {
	items := []merkle.Item{
		{EvidenceID: "ev-a", Digest: testsupport.NewEvidence(t, "a").Digest},
		{EvidenceID: "ev-b", Digest: testsupport.NewEvidence(t, "b").Digest},
	}
	batch, err := merkle.CloseBatch(items)
	if err != nil {
		t.Fatalf("CloseBatch: %v", err)
	}
	proof, err := batch.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	encoded, err := merkle.MarshalProof(proof)
	if err != nil {
		t.Fatalf("MarshalProof: %v", err)
	}

	bundle := &api.ProofBundle{
		EvidenceID: "ev-a",
		Digest:     items[0].Digest.String(),
		Root:       batch.Root.String(),
		Proof:      encoded,
	}
	ok, err := verifyBundle(bundle)
	if err != nil {
		t.Fatalf("verifyBundle: %v", err)
	}
	if !ok {
		t.Fatal("expected proof to verify")
	}

	tampered := *bundle
	tampered.Digest = testsupport.NewEvidence(t, "c").Digest.String()
	ok, err = verifyBundle(&tampered)
	if err != nil {
		t.Fatalf("verifyBundle tampered: %v", err)
	}
	if ok {
		t.Fatal("expected tampered bundle to fail verification")
	}
}
