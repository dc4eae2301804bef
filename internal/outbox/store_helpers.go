package outbox

import (
	"database/sql"
	"errors"
	"time"

	"anchord/internal/digest"
)

const jobColumns = "j.id, j.evidence_id, e.digest_algo, e.digest_hex, j.status, j.attempts, j.confirm_attempts, j.next_attempt_at, j.batch_id, j.error_message, j.created_at, j.updated_at"

const jobFrom = " FROM outbox_jobs j JOIN evidence_records e ON e.id = j.evidence_id"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		evidenceID      string
		digestAlgo      string
		digestHex       string
		statusStr       string
		attempts        int
		confirmAttempts int
		nextAttemptRaw  sql.NullString
		batchID         sql.NullString
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&evidenceID,
		&digestAlgo,
		&digestHex,
		&statusStr,
		&attempts,
		&confirmAttempts,
		&nextAttemptRaw,
		&batchID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		EvidenceID:      evidenceID,
		Digest:          digest.Value{Algo: digest.Algorithm(digestAlgo), Hex: digestHex},
		Status:          Status(statusStr),
		Attempts:        attempts,
		ConfirmAttempts: confirmAttempts,
		BatchID:         batchID.String,
		ErrorMessage:    errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			job.NextAttemptAt = &next
		}
	}
	return job, nil
}

func scanTxRef(scanner interface{ Scan(dest ...any) error }) (TxRef, error) {
	var (
		id           int64
		batchID      string
		providerID   string
		txID         string
		statusStr    string
		submittedRaw sql.NullString
		confirmedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &batchID, &providerID, &txID, &statusStr, &submittedRaw, &confirmedRaw); err != nil {
		return TxRef{}, err
	}
	ref := TxRef{
		ID:         id,
		BatchID:    batchID,
		ProviderID: providerID,
		TxID:       txID,
		Status:     ConfirmationStatus(statusStr),
	}
	if submitted, err := parseTimeString(submittedRaw.String); err == nil {
		ref.SubmittedAt = submitted
	}
	if confirmedRaw.Valid {
		if confirmed, err := parseTimeString(confirmedRaw.String); err == nil {
			ref.ConfirmedAt = &confirmed
		}
	}
	return ref, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
