package scheduler

import (
	"context"

	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/outbox"
)

// runConfirmationPass executes one iteration of the confirmation loop: fetch
// awaiting jobs, poll every outstanding tx ref once per batch, and settle
// batches whose refs are all confirmed, permanently failed, or past the
// attempt ceiling.
func (s *Scheduler) runConfirmationPass(ctx context.Context) {
	jobs, err := s.store.FetchAwaitingConfirmation(ctx, confirmFetchLimit)
	if err != nil {
		s.logger.Error("fetch awaiting confirmation failed", logging.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	batches := make(map[string][]*outbox.Job)
	order := make([]string, 0)
	for _, job := range jobs {
		if job.BatchID == "" {
			continue
		}
		if _, seen := batches[job.BatchID]; !seen {
			order = append(order, job.BatchID)
		}
		batches[job.BatchID] = append(batches[job.BatchID], job)
	}

	for _, batchID := range order {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.confirmBatch(ctx, batchID, batches[batchID])
	}
}

func (s *Scheduler) confirmBatch(ctx context.Context, batchID string, jobs []*outbox.Job) {
	logger := s.logger.With(logging.String(logging.FieldBatchID, batchID))

	if err := s.store.BumpConfirmAttempts(ctx, batchID); err != nil {
		logger.Error("bump confirm attempts failed", logging.Error(err))
		return
	}

	refs := ledgerTxRefs(jobs[0].TxRefs)
	updated, confirmErr := s.providers.ConfirmAll(ctx, refs)

	for i, ref := range updated {
		if i < len(refs) && refs[i].Status == ref.Status {
			continue
		}
		if err := s.store.UpdateTxRefStatus(ctx, batchID, ref.Provider, outbox.ConfirmationStatus(ref.Status), ref.ConfirmedAt); err != nil {
			logger.Error("update tx ref failed",
				logging.String(logging.FieldProvider, ref.Provider),
				logging.Error(err),
			)
		}
	}

	if confirmErr != nil && ledger.IsPermanent(confirmErr) {
		logger.Error("batch permanently unconfirmable", logging.Error(confirmErr))
		if _, err := s.store.MarkBatchFailed(ctx, batchID, confirmErr.Error()); err != nil {
			logger.Error("mark batch failed errored", logging.Error(err))
		}
		return
	}

	if ledger.AllConfirmed(updated) {
		count, err := s.store.MarkConfirmed(ctx, batchID)
		if err != nil {
			logger.Error("mark confirmed failed", logging.Error(err))
			return
		}
		logger.Info("batch confirmed", logging.Int64("jobs", count))
		return
	}

	if confirmErr != nil {
		logger.Warn("confirmation poll failed, will retry", logging.Error(confirmErr))
	}

	// This pass already counted, so compare against the ceiling inclusive of
	// the bump above.
	attempts := 0
	for _, job := range jobs {
		if job.ConfirmAttempts > attempts {
			attempts = job.ConfirmAttempts
		}
	}
	if attempts+1 >= s.cfg.Anchor.ConfirmAttemptCeiling {
		logger.Error("confirmation attempt ceiling reached, abandoning batch",
			logging.Int("attempts", attempts+1),
		)
		if _, err := s.store.MarkBatchFailed(ctx, batchID, "confirmation timeout"); err != nil {
			logger.Error("mark batch failed errored", logging.Error(err))
		}
	}
}

func ledgerTxRefs(refs []outbox.TxRef) []ledger.TxRef {
	out := make([]ledger.TxRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ledger.TxRef{
			Provider:    ref.ProviderID,
			TxID:        ref.TxID,
			Status:      ledger.ConfirmationStatus(ref.Status),
			SubmittedAt: ref.SubmittedAt,
			ConfirmedAt: ref.ConfirmedAt,
		})
	}
	return out
}
