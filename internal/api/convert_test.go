package api

import (
	"testing"
	"time"

	"anchord/internal/digest"
	"anchord/internal/outbox"
)

func TestFromJobCarriesRefsAndTimes(t *testing.T) {
	submitted := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	confirmed := submitted.Add(90 * time.Second)
	job := &outbox.Job{
		ID:         7,
		EvidenceID: "ev-convert",
		Digest:     digest.Sum([]byte("convert")),
		Status:     outbox.StatusSubmitted,
		Attempts:   2,
		BatchID:    "batch_a",
		CreatedAt:  submitted,
		TxRefs: []outbox.TxRef{
			{ProviderID: "stub", TxID: "stub:1", Status: outbox.TxStatusConfirmed, SubmittedAt: submitted, ConfirmedAt: &confirmed},
		},
	}

	converted := FromJob(job)
	if converted.EvidenceID != "ev-convert" || converted.Status != "submitted" {
		t.Fatalf("unexpected conversion: %+v", converted)
	}
	if converted.Digest != job.Digest.String() {
		t.Fatalf("digest = %q, want %q", converted.Digest, job.Digest.String())
	}
	if converted.CreatedAt != "2026-03-14T09:26:53Z" {
		t.Fatalf("created at = %q", converted.CreatedAt)
	}
	if len(converted.TxRefs) != 1 {
		t.Fatalf("tx refs = %+v", converted.TxRefs)
	}
	ref := converted.TxRefs[0]
	if ref.Provider != "stub" || ref.Status != "confirmed" || ref.ConfirmedAt == "" {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	if zero := FromJob(nil); zero.EvidenceID != "" {
		t.Fatalf("nil job converted to %+v", zero)
	}
}

func TestMergeStatsZeroFillsEveryStatus(t *testing.T) {
	merged := MergeStats(map[outbox.Status]int{outbox.StatusPending: 3})
	if len(merged) != len(outbox.AllStatuses()) {
		t.Fatalf("expected %d entries, got %d", len(outbox.AllStatuses()), len(merged))
	}
	if merged["pending"] != 3 {
		t.Fatalf("pending = %d, want 3", merged["pending"])
	}
	if merged["failed"] != 0 {
		t.Fatalf("failed = %d, want 0", merged["failed"])
	}

	if nilMerged := MergeStats(nil); nilMerged["confirmed"] != 0 {
		t.Fatalf("nil stats merged to %+v", nilMerged)
	}
}
