package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anchord/internal/digest"
	"anchord/internal/evidence"
)

// CreateJob persists an evidence record and its pending outbox job in one
// transaction. Evidence whose digest is already enqueued yields
// ErrDuplicateEvidence and no new rows.
func (s *Store) CreateJob(ctx context.Context, rec *evidence.Record) (*Job, error) {
	if rec == nil {
		return nil, errors.New("evidence record is nil")
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validate evidence: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	var metadataJSON any
	if len(rec.Metadata) > 0 {
		encoded, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO evidence_records (id, digest_algo, digest_hex, payload_mime, metadata_json, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID,
			string(rec.Digest.Algo),
			rec.Digest.Hex,
			nullableString(rec.PayloadMIME),
			metadataJSON,
			timestamp,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEvidence
			}
			return fmt.Errorf("insert evidence: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_jobs (evidence_id, status, attempts, confirm_attempts, created_at, updated_at)
             VALUES (?, ?, 0, 0, ?, ?)`,
			rec.ID,
			StatusPending,
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetJobByEvidenceID(ctx, rec.ID)
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+jobFrom+` WHERE j.id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetJobByEvidenceID fetches the job for an evidence record, tx refs included.
func (s *Store) GetJobByEvidenceID(ctx context.Context, evidenceID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+jobFrom+` WHERE j.evidence_id = ?`, evidenceID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by evidence: %w", err)
	}
	if job.BatchID != "" {
		refs, err := s.TxRefsForBatch(ctx, job.BatchID)
		if err != nil {
			return nil, err
		}
		job.TxRefs = refs
	}
	return job, nil
}

// GetJobByDigest fetches the job whose evidence carries the given digest.
// Duplicate submissions are detected by digest, so this is how callers find
// the record that won the race.
func (s *Store) GetJobByDigest(ctx context.Context, value digest.Value) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+jobFrom+` WHERE e.digest_algo = ? AND e.digest_hex = ?`,
		string(value.Algo), value.Hex,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by digest: %w", err)
	}
	if job.BatchID != "" {
		refs, err := s.TxRefsForBatch(ctx, job.BatchID)
		if err != nil {
			return nil, err
		}
		job.TxRefs = refs
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + jobFrom
	orderClause := ` ORDER BY j.created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE j.status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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
	return jobs, rows.Err()
}

// ClaimPending atomically moves up to limit due pending jobs to claimed and
// returns them. Two concurrent callers never receive the same job.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var ids []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// The closure re-runs after a busy rollback; start each attempt
		// from an empty selection.
		ids = ids[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM outbox_jobs
             WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
             ORDER BY created_at LIMIT ?`,
			StatusPending, now, limit,
		)
		if err != nil {
			return fmt.Errorf("select pending: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		placeholders := makePlaceholders(len(ids))
		args := make([]any, 0, len(ids)+3)
		args = append(args, StatusClaimed, now, StatusPending)
		for _, id := range ids {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE outbox_jobs SET status = ?, updated_at = ?
             WHERE status = ? AND id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("claim pending: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected != int64(len(ids)) {
			return fmt.Errorf("claim pending: expected %d transitions, got %d", len(ids), affected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+jobFrom+` WHERE j.id IN (`+placeholders+`) ORDER BY j.created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("load claimed: %w", err)
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
	return jobs, rows.Err()
}
