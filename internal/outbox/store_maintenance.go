package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"anchord/internal/digest"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM outbox_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusConfirmed:
			health.Confirmed += count
		case StatusFailed:
			health.Failed += count
		default:
			if _, ok := inFlightStatuses[status]; ok {
				health.InFlight += count
			}
			if _, ok := awaitingConfirmStatuses[status]; ok {
				health.AwaitingConfirm += count
			}
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the outbox database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("outbox database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat outbox database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("outbox database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("outbox database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping outbox database: %w", err)
	}
	health.DatabaseReadable = true

	row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM outbox_jobs")
	if err := row.Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count outbox jobs: %w", err)
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// ProofBundle assembles the self-contained verification material for one
// evidence record: digest, inclusion proof, batch root, and ledger tx refs.
func (s *Store) ProofBundle(ctx context.Context, evidenceID string) (*Bundle, error) {
	job, err := s.GetJobByEvidenceID(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("evidence %s: %w", evidenceID, ErrNotFound)
	}
	if job.BatchID == "" {
		return nil, fmt.Errorf("evidence %s not yet batched: %w", evidenceID, ErrNotFound)
	}

	bundle := &Bundle{
		EvidenceID: evidenceID,
		Digest:     job.Digest,
		Status:     job.Status,
		BatchID:    job.BatchID,
		TxRefs:     job.TxRefs,
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT leaf_index, proof_json FROM merkle_proofs WHERE evidence_id = ?`,
		evidenceID,
	)
	if err := row.Scan(&bundle.LeafIndex, &bundle.ProofJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proof for evidence %s: %w", evidenceID, ErrNotFound)
		}
		return nil, fmt.Errorf("load proof: %w", err)
	}

	var rootAlgo, rootHex string
	row = s.db.QueryRowContext(ctx,
		`SELECT root_algo, root_hex FROM merkle_batches WHERE id = ?`,
		job.BatchID,
	)
	if err := row.Scan(&rootAlgo, &rootHex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", job.BatchID, ErrNotFound)
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	bundle.Root = digest.Value{Algo: digest.Algorithm(rootAlgo), Hex: rootHex}

	return bundle, nil
}
