package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MarkSubmitting moves claimed jobs to submitting before the ledger call so
// the watchdog can distinguish a crash mid-submit from an idle claim.
func (s *Store) MarkSubmitting(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusSubmitting, now, StatusClaimed)
	for _, id := range ids {
		args = append(args, id)
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE outbox_jobs SET status = ?, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("mark submitting: %w", err)
	}
	return nil
}

// RecordBatch persists a closed batch in a single transaction: the batch row,
// one inclusion proof per job, the ledger tx refs, and the claimed jobs moved
// to submitted. A reader never observes a partially recorded batch.
func (s *Store) RecordBatch(ctx context.Context, batch BatchRecord, proofs []ProofRecord, refs []TxRef) error {
	if batch.ID == "" {
		return errors.New("batch id is empty")
	}
	if len(proofs) == 0 {
		return errors.New("batch has no proofs")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	batchCreated := batch.CreatedAt
	if batchCreated.IsZero() {
		batchCreated = now
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO merkle_batches (id, root_algo, root_hex, leaf_count, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			batch.ID,
			string(batch.Root.Algo),
			batch.Root.Hex,
			batch.LeafCount,
			batchCreated.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for _, proof := range proofs {
			// Replace covers a failed job retried into a later batch.
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO merkle_proofs (evidence_id, batch_id, leaf_index, proof_json)
                 VALUES (?, ?, ?, ?)`,
				proof.EvidenceID,
				batch.ID,
				proof.LeafIndex,
				proof.ProofJSON,
			); err != nil {
				return fmt.Errorf("insert proof: %w", err)
			}
		}

		for _, ref := range refs {
			submitted := ref.SubmittedAt
			if submitted.IsZero() {
				submitted = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chain_tx_refs (batch_id, provider_id, tx_id, status, submitted_at, confirmed_at)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				batch.ID,
				ref.ProviderID,
				ref.TxID,
				ref.Status,
				submitted.UTC().Format(time.RFC3339Nano),
				nullableTime(ref.ConfirmedAt),
			); err != nil {
				return fmt.Errorf("insert tx ref: %w", err)
			}
		}

		placeholders := makePlaceholders(len(proofs))
		args := make([]any, 0, len(proofs)+4)
		args = append(args, StatusSubmitted, batch.ID, timestamp, StatusClaimed, StatusSubmitting)
		for _, proof := range proofs {
			args = append(args, proof.EvidenceID)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE outbox_jobs SET status = ?, batch_id = ?, error_message = NULL, updated_at = ?
             WHERE status IN (?, ?) AND evidence_id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("move jobs to submitted: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected != int64(len(proofs)) {
			return fmt.Errorf("record batch: expected %d job transitions, got %d", len(proofs), affected)
		}
		return nil
	})
}

// FetchAwaitingConfirmation returns jobs in submitted or confirming state,
// oldest first, with their ledger tx refs loaded.
func (s *Store) FetchAwaitingConfirmation(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+jobFrom+` WHERE j.status IN (?, ?) ORDER BY j.created_at LIMIT ?`,
		StatusSubmitted, StatusConfirming, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch awaiting confirmation: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refsByBatch := make(map[string][]TxRef)
	for _, job := range jobs {
		if job.BatchID == "" {
			continue
		}
		refs, ok := refsByBatch[job.BatchID]
		if !ok {
			refs, err = s.TxRefsForBatch(ctx, job.BatchID)
			if err != nil {
				return nil, err
			}
			refsByBatch[job.BatchID] = refs
		}
		job.TxRefs = refs
	}
	return jobs, nil
}

// TxRefsForBatch returns all ledger tx refs recorded for a batch.
func (s *Store) TxRefsForBatch(ctx context.Context, batchID string) ([]TxRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, provider_id, tx_id, status, submitted_at, confirmed_at
         FROM chain_tx_refs WHERE batch_id = ? ORDER BY provider_id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tx refs: %w", err)
	}
	defer rows.Close()

	var refs []TxRef
	for rows.Next() {
		ref, err := scanTxRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateTxRefStatus records a confirmation-phase status change for one
// provider's submission of a batch.
func (s *Store) UpdateTxRefStatus(ctx context.Context, batchID, providerID string, status ConfirmationStatus, confirmedAt *time.Time) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE chain_tx_refs SET status = ?, confirmed_at = ?
         WHERE batch_id = ? AND provider_id = ?`,
		status,
		nullableTime(confirmedAt),
		batchID,
		providerID,
	); err != nil {
		return fmt.Errorf("update tx ref: %w", err)
	}
	return nil
}

// BumpConfirmAttempts increments the confirmation poll counter for every job
// in a batch and moves submitted jobs to confirming.
func (s *Store) BumpConfirmAttempts(ctx context.Context, batchID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE outbox_jobs
         SET confirm_attempts = confirm_attempts + 1,
             status = CASE status WHEN ? THEN ? ELSE status END,
             updated_at = ?
         WHERE batch_id = ? AND status IN (?, ?)`,
		StatusSubmitted, StatusConfirming,
		now,
		batchID,
		StatusSubmitted, StatusConfirming,
	); err != nil {
		return fmt.Errorf("bump confirm attempts: %w", err)
	}
	return nil
}

// MarkConfirmed moves every awaiting job in a batch to confirmed.
func (s *Store) MarkConfirmed(ctx context.Context, batchID string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_jobs SET status = ?, error_message = NULL, updated_at = ?
         WHERE batch_id = ? AND status IN (?, ?)`,
		StatusConfirmed,
		now,
		batchID,
		StatusSubmitted, StatusConfirming,
	)
	if err != nil {
		return 0, fmt.Errorf("mark confirmed: %w", err)
	}
	return res.RowsAffected()
}

// MarkBatchFailed moves every awaiting job in a batch to failed with a reason.
func (s *Store) MarkBatchFailed(ctx context.Context, batchID, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_jobs SET status = ?, error_message = ?, updated_at = ?
         WHERE batch_id = ? AND status IN (?, ?)`,
		StatusFailed,
		message,
		now,
		batchID,
		StatusSubmitted, StatusConfirming,
	)
	if err != nil {
		return 0, fmt.Errorf("mark batch failed: %w", err)
	}
	return res.RowsAffected()
}

// MarkJobsFailed moves specific jobs to failed with a reason.
func (s *Store) MarkJobsFailed(ctx context.Context, message string, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusFailed, message, now)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_jobs SET status = ?, error_message = ?, updated_at = ?
         WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark jobs failed: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseClaims returns claimed jobs to pending without counting an attempt.
// Used when a claim turns out smaller than a full batch and not yet old
// enough to close.
func (s *Store) ReleaseClaims(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusClaimed)
	for _, id := range ids {
		args = append(args, id)
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE outbox_jobs SET status = ?, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("release claims: %w", err)
	}
	return nil
}

// ScheduleRetry returns jobs to pending with an incremented attempt counter
// and a due time in the future.
func (s *Store) ScheduleRetry(ctx context.Context, delay time.Duration, message string, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args,
		StatusPending,
		now.Add(delay).Format(time.RFC3339Nano),
		nullableString(message),
		now.Format(time.RFC3339Nano),
	)
	for _, id := range ids {
		args = append(args, id)
	}
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE outbox_jobs
         SET status = ?, attempts = attempts + 1, next_attempt_at = ?,
             error_message = ?, updated_at = ?
         WHERE id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// ReclaimStale returns claimed or submitting jobs whose last update predates
// the cutoff back to pending. Covers a submission loop that died mid-flight.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_jobs
         SET status = ?, updated_at = ?
         WHERE status IN (?, ?) AND updated_at < ?`,
		StatusPending,
		now,
		StatusClaimed, StatusSubmitting,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending for reprocessing. With no ids
// every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE outbox_jobs
             SET status = ?, next_attempt_at = NULL, error_message = NULL, batch_id = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_jobs
         SET status = ?, next_attempt_at = NULL, error_message = NULL, batch_id = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes confirmed and failed jobs. Manual maintenance only;
// no automatic path deletes failed jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM outbox_jobs WHERE status IN (?, ?)`,
		StatusConfirmed, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
