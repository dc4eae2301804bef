package scheduler

import (
	"context"
	"testing"
	"time"

	"anchord/internal/config"
	"anchord/internal/digest"
	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/outbox"
	"anchord/internal/testsupport"
)

func TestBackoffGrowthAndCap(t *testing.T) {
	b := Backoff{
		Base:        5 * time.Second,
		Cap:         5 * time.Minute,
		MaxExponent: 20,
	}

	if got := b.Delay(0); got != 5*time.Second {
		t.Fatalf("attempt 0: expected 5s, got %v", got)
	}
	if got := b.Delay(1); got != 10*time.Second {
		t.Fatalf("attempt 1: expected 10s, got %v", got)
	}
	if got := b.Delay(3); got != 40*time.Second {
		t.Fatalf("attempt 3: expected 40s, got %v", got)
	}
	if got := b.Delay(10); got != 5*time.Minute {
		t.Fatalf("attempt 10: expected cap, got %v", got)
	}
	if got := b.Delay(1 << 30); got != 5*time.Minute {
		t.Fatalf("huge attempt count: expected cap, got %v", got)
	}
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{
		Base:        time.Second,
		Cap:         time.Minute,
		MaxExponent: 20,
		JitterMax:   time.Second,
	}
	for i := 0; i < 100; i++ {
		delay := b.Delay(2)
		if delay < 4*time.Second || delay >= 5*time.Second {
			t.Fatalf("expected delay in [4s,5s), got %v", delay)
		}
	}
}

// scriptedProvider fails submissions and confirmations with preset errors.
type scriptedProvider struct {
	id         string
	submitErr  error
	confirmErr error
	neverOK    bool
	submits    int
	confirms   int
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) Submit(ctx context.Context, root digest.Value) (ledger.TxRef, error) {
	p.submits++
	if p.submitErr != nil {
		return ledger.TxRef{}, p.submitErr
	}
	return ledger.TxRef{
		Provider:    p.id,
		TxID:        "scripted:tx",
		Status:      ledger.StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (p *scriptedProvider) Confirm(ctx context.Context, ref ledger.TxRef) (ledger.TxRef, error) {
	p.confirms++
	if p.confirmErr != nil {
		return ref, p.confirmErr
	}
	if p.neverOK {
		return ref, nil
	}
	now := time.Now().UTC()
	ref.Status = ledger.StatusConfirmed
	ref.ConfirmedAt = &now
	return ref, nil
}

func newTestScheduler(t *testing.T, cfg *config.Config, store *outbox.Store, members ...ledger.Provider) *Scheduler {
	t.Helper()

	if len(members) == 0 {
		members = []ledger.Provider{ledger.NewStub("")}
	}
	fanout, err := ledger.NewFanout(members...)
	if err != nil {
		t.Fatalf("NewFanout failed: %v", err)
	}
	return New(cfg, store, fanout, logging.NewNop())
}

func TestSubmissionPassAnchorsFullBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(2))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreateJob(t, store, "full-1")
	testsupport.MustCreateJob(t, store, "full-2")

	sched := newTestScheduler(t, cfg, store)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	jobs, err := store.List(ctx, outbox.StatusSubmitted)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 submitted jobs, got %d", len(jobs))
	}
	if jobs[0].BatchID == "" || jobs[0].BatchID != jobs[1].BatchID {
		t.Fatalf("expected shared batch id, got %q and %q", jobs[0].BatchID, jobs[1].BatchID)
	}

	refs, err := store.TxRefsForBatch(ctx, jobs[0].BatchID)
	if err != nil {
		t.Fatalf("TxRefsForBatch failed: %v", err)
	}
	if len(refs) != 1 || refs[0].Status != outbox.TxStatusSubmitted {
		t.Fatalf("unexpected tx refs: %#v", refs)
	}

	for _, job := range jobs {
		bundle, err := store.ProofBundle(ctx, job.EvidenceID)
		if err != nil {
			t.Fatalf("ProofBundle failed: %v", err)
		}
		if bundle.ProofJSON == "" {
			t.Fatal("expected persisted proof")
		}
	}
}

func TestSubmissionPassHoldsPartialBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10))
	cfg.Anchor.BatchMaxWait = 3600
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "partial")

	sched := newTestScheduler(t, cfg, store)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusPending {
		t.Fatalf("expected partial batch released to pending, got %s", updated.Status)
	}
	if updated.Attempts != 0 {
		t.Fatalf("expected no attempt counted for a held batch, got %d", updated.Attempts)
	}
}

func TestSubmissionPassClosesAgedPartialBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10))
	cfg.Anchor.BatchMaxWait = 0
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "aged")

	sched := newTestScheduler(t, cfg, store)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusSubmitted {
		t.Fatalf("expected aged partial batch submitted, got %s", updated.Status)
	}
}

func TestSubmissionTransientFailureSchedulesRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "transient")

	provider := &scriptedProvider{
		id:        "flaky",
		submitErr: ledger.Wrap(ledger.ErrTransient, "flaky", "submit", "timeout", nil),
	}
	sched := newTestScheduler(t, cfg, store, provider)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusPending {
		t.Fatalf("expected pending after transient failure, got %s", updated.Status)
	}
	if updated.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.Attempts)
	}
	if updated.NextAttemptAt == nil || !updated.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatalf("expected future next attempt, got %v", updated.NextAttemptAt)
	}
}

func TestSubmissionPermanentFailureFailsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "permanent")

	provider := &scriptedProvider{
		id:        "strict",
		submitErr: ledger.Wrap(ledger.ErrPermanent, "strict", "submit", "invalid input", nil),
	}
	sched := newTestScheduler(t, cfg, store, provider)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusFailed {
		t.Fatalf("expected failed after permanent rejection, got %s", updated.Status)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("expected recorded failure reason")
	}

	// Failed jobs stay failed; nothing is claimable without operator action.
	sched.runSubmissionPass(ctx)
	refetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if refetched.Status != outbox.StatusFailed {
		t.Fatalf("expected job to remain failed, got %s", refetched.Status)
	}
}

func TestConfirmationPassConfirmsBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "confirm")

	sched := newTestScheduler(t, cfg, store)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)
	sched.runConfirmationPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}

	refs, err := store.TxRefsForBatch(ctx, updated.BatchID)
	if err != nil {
		t.Fatalf("TxRefsForBatch failed: %v", err)
	}
	if len(refs) != 1 || refs[0].Status != outbox.TxStatusConfirmed {
		t.Fatalf("unexpected refs: %#v", refs)
	}
}

func TestConfirmationRequiresEveryFanoutMember(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	cfg.Anchor.ConfirmAttemptCeiling = 100
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "fanout")

	slow := &scriptedProvider{id: "slow", neverOK: true}
	fast := &scriptedProvider{id: "fast"}
	sched := newTestScheduler(t, cfg, store, fast, slow)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	sched.runConfirmationPass(ctx)
	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusConfirming {
		t.Fatalf("expected confirming while one member lags, got %s", updated.Status)
	}

	slow.neverOK = false
	sched.runConfirmationPass(ctx)
	updated, err = store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusConfirmed {
		t.Fatalf("expected confirmed once every member agrees, got %s", updated.Status)
	}
}

func TestConfirmationCeilingAbandonsBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	cfg.Anchor.ConfirmAttemptCeiling = 2
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "ceiling")

	provider := &scriptedProvider{id: "stuck", neverOK: true}
	sched := newTestScheduler(t, cfg, store, provider)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	sched.runConfirmationPass(ctx)
	sched.runConfirmationPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusFailed {
		t.Fatalf("expected failed after attempt ceiling, got %s", updated.Status)
	}
	if updated.ErrorMessage != "confirmation timeout" {
		t.Fatalf("unexpected failure reason %q", updated.ErrorMessage)
	}
}

func TestConfirmationPermanentFailureFailsBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.MustCreateJob(t, store, "dropped")

	provider := &scriptedProvider{id: "dropper"}
	sched := newTestScheduler(t, cfg, store, provider)
	ctx := context.Background()
	sched.runSubmissionPass(ctx)

	provider.confirmErr = ledger.Wrap(ledger.ErrPermanent, "dropper", "confirm", "tx dropped", nil)
	sched.runConfirmationPass(ctx)

	updated, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != outbox.StatusFailed {
		t.Fatalf("expected failed after permanent confirm error, got %s", updated.Status)
	}
}

func TestStartStopAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(1))
	cfg.Anchor.SubmitInterval = 1
	cfg.Anchor.ConfirmInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustCreateJob(t, store, "lifecycle")

	sched := newTestScheduler(t, cfg, store)
	if sched.Health().Healthy() {
		t.Fatal("expected stopped scheduler to be unhealthy")
	}

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sched.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Health().Healthy() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !sched.Health().Healthy() {
		t.Fatal("expected running scheduler to report healthy loops")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.List(context.Background(), outbox.StatusConfirmed)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(job) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	sched.Stop()
	if sched.Health().Healthy() {
		t.Fatal("expected stopped scheduler to be unhealthy")
	}
	sched.Stop()
}
