package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"anchord/internal/config"
	"anchord/internal/digest"
	"anchord/internal/evidence"
	"anchord/internal/outbox"
)

// MustOpenStore opens an outbox.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *outbox.Store {
	t.Helper()

	store, err := outbox.Open(cfg)
	if err != nil {
		t.Fatalf("outbox.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEvidence creates an evidence record with a digest derived from seed.
func NewEvidence(t testing.TB, seed string) *evidence.Record {
	t.Helper()

	return &evidence.Record{
		ID:        fmt.Sprintf("ev-%s", seed),
		CreatedAt: time.Now().UTC(),
		Digest:    digest.Sum([]byte(seed)),
	}
}

// MustCreateJob enqueues evidence derived from seed and returns the job.
func MustCreateJob(t testing.TB, store *outbox.Store, seed string) *outbox.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), NewEvidence(t, seed))
	if err != nil {
		t.Fatalf("CreateJob(%s): %v", seed, err)
	}
	return job
}
