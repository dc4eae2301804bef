package api

import (
	"time"

	"anchord/internal/outbox"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FromJob converts a store job to its transport form.
func FromJob(job *outbox.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:              job.ID,
		EvidenceID:      job.EvidenceID,
		Digest:          job.Digest.String(),
		Status:          string(job.Status),
		Attempts:        job.Attempts,
		ConfirmAttempts: job.ConfirmAttempts,
		BatchID:         job.BatchID,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
		TxRefs:          FromTxRefs(job.TxRefs),
	}
}

// FromJobs converts a job slice to transport form.
func FromJobs(jobs []*outbox.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromTxRefs converts stored tx refs to transport form.
func FromTxRefs(refs []outbox.TxRef) []TxRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]TxRef, 0, len(refs))
	for _, ref := range refs {
		converted := TxRef{
			Provider:    ref.ProviderID,
			TxID:        ref.TxID,
			Status:      string(ref.Status),
			SubmittedAt: formatTime(ref.SubmittedAt),
		}
		if ref.ConfirmedAt != nil {
			converted.ConfirmedAt = formatTime(*ref.ConfirmedAt)
		}
		out = append(out, converted)
	}
	return out
}

// FromBundle converts a store proof bundle to transport form.
func FromBundle(bundle *outbox.Bundle) ProofBundle {
	if bundle == nil {
		return ProofBundle{}
	}
	return ProofBundle{
		EvidenceID: bundle.EvidenceID,
		Digest:     bundle.Digest.String(),
		Status:     string(bundle.Status),
		BatchID:    bundle.BatchID,
		LeafIndex:  bundle.LeafIndex,
		Proof:      bundle.ProofJSON,
		Root:       bundle.Root.String(),
		TxRefs:     FromTxRefs(bundle.TxRefs),
	}
}

// MergeStats converts status-keyed counts to string keys, filling in zero
// entries for every known status.
func MergeStats(stats map[outbox.Status]int) map[string]int {
	out := make(map[string]int, len(outbox.AllStatuses()))
	for _, status := range outbox.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}
