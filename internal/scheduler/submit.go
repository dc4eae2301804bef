package scheduler

import (
	"context"
	"time"

	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/merkle"
	"anchord/internal/outbox"
)

// runSubmissionPass executes one iteration of the submission loop: reclaim
// stale claims, claim due pending jobs, close a batch when it is full or old
// enough, and submit its root to every provider. Store errors log and skip
// the pass; they never kill the loop.
func (s *Scheduler) runSubmissionPass(ctx context.Context) {
	if reclaimed, err := s.store.ReclaimStale(ctx, time.Now().UTC().Add(-s.staleTimeout)); err != nil {
		s.logger.Error("reclaim stale jobs failed", logging.Error(err))
	} else if reclaimed > 0 {
		s.logger.Warn("reclaimed stale in-flight jobs", logging.Int64("count", reclaimed))
	}

	jobs, err := s.store.ClaimPending(ctx, s.cfg.Anchor.BatchSize)
	if err != nil {
		s.logger.Error("claim pending jobs failed", logging.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	if !s.batchReady(jobs) {
		ids := jobIDs(jobs)
		if err := s.store.ReleaseClaims(ctx, ids...); err != nil {
			s.logger.Error("release partial claim failed", logging.Error(err))
		}
		return
	}

	s.submitBatch(ctx, jobs)
}

// batchReady applies the size-or-age trigger: a full claim closes
// immediately, a partial claim closes once its oldest job has waited past
// BatchMaxWait. Age is measured from job creation; claim timestamps reset
// every time an under-filled claim is released back to pending.
func (s *Scheduler) batchReady(jobs []*outbox.Job) bool {
	if len(jobs) >= s.cfg.Anchor.BatchSize {
		return true
	}
	oldest := jobs[0].CreatedAt
	for _, job := range jobs[1:] {
		if job.CreatedAt.Before(oldest) {
			oldest = job.CreatedAt
		}
	}
	return time.Since(oldest) >= s.batchMaxWait
}

func (s *Scheduler) submitBatch(ctx context.Context, jobs []*outbox.Job) {
	ids := jobIDs(jobs)
	if err := s.store.MarkSubmitting(ctx, ids...); err != nil {
		s.logger.Error("mark submitting failed", logging.Error(err))
		return
	}

	items := make([]merkle.Item, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, merkle.Item{EvidenceID: job.EvidenceID, Digest: job.Digest})
	}
	batch, err := merkle.CloseBatch(items)
	if err != nil {
		s.logger.Error("close batch failed", logging.Error(err))
		s.failJobs(ctx, jobs, "close batch: "+err.Error())
		return
	}

	logger := s.logger.With(
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("leaves", batch.Size()),
	)

	refs, err := s.providers.SubmitAll(ctx, batch.Root)
	if err != nil {
		if ledger.IsPermanent(err) {
			logger.Error("batch rejected by ledger", logging.Error(err))
			s.failJobs(ctx, jobs, err.Error())
			return
		}
		logger.Warn("batch submission failed, scheduling retry", logging.Error(err))
		s.retryJobs(ctx, jobs, err.Error())
		return
	}

	proofs := make([]outbox.ProofRecord, 0, len(jobs))
	for i, leaf := range batch.Leaves {
		proof, err := batch.Proof(i)
		if err != nil {
			logger.Error("derive proof failed", logging.Error(err))
			s.retryJobs(ctx, jobs, "derive proof: "+err.Error())
			return
		}
		proofJSON, err := merkle.MarshalProof(proof)
		if err != nil {
			logger.Error("marshal proof failed", logging.Error(err))
			s.retryJobs(ctx, jobs, "marshal proof: "+err.Error())
			return
		}
		proofs = append(proofs, outbox.ProofRecord{
			EvidenceID: leaf.EvidenceID,
			BatchID:    batch.ID,
			LeafIndex:  i,
			ProofJSON:  proofJSON,
		})
	}

	record := outbox.BatchRecord{
		ID:        batch.ID,
		Root:      batch.Root,
		LeafCount: batch.Size(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.RecordBatch(ctx, record, proofs, storeTxRefs(batch.ID, refs)); err != nil {
		// Leave the jobs in submitting; the watchdog reclaims them and the
		// batch is rebuilt under a new id on a later pass.
		logger.Error("record batch failed", logging.Error(err))
		return
	}

	logger.Info("batch submitted",
		logging.String("root", batch.Root.Hex),
		logging.Int("providers", len(refs)),
	)
}

func (s *Scheduler) failJobs(ctx context.Context, jobs []*outbox.Job, message string) {
	if _, err := s.store.MarkJobsFailed(ctx, message, jobIDs(jobs)...); err != nil {
		s.logger.Error("mark jobs failed errored", logging.Error(err))
	}
}

func (s *Scheduler) retryJobs(ctx context.Context, jobs []*outbox.Job, message string) {
	attempts := 0
	for _, job := range jobs {
		if job.Attempts > attempts {
			attempts = job.Attempts
		}
	}
	delay := s.backoff.Delay(attempts)
	if err := s.store.ScheduleRetry(ctx, delay, message, jobIDs(jobs)...); err != nil {
		s.logger.Error("schedule retry failed", logging.Error(err))
		return
	}
	s.logger.Info("jobs scheduled for retry",
		logging.Int("count", len(jobs)),
		logging.Duration("delay", delay),
	)
}

func jobIDs(jobs []*outbox.Job) []int64 {
	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

func storeTxRefs(batchID string, refs []ledger.TxRef) []outbox.TxRef {
	out := make([]outbox.TxRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, outbox.TxRef{
			BatchID:     batchID,
			ProviderID:  ref.Provider,
			TxID:        ref.TxID,
			Status:      outbox.ConfirmationStatus(ref.Status),
			SubmittedAt: ref.SubmittedAt,
			ConfirmedAt: ref.ConfirmedAt,
		})
	}
	return out
}
