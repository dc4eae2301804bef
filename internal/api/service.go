package api

import (
	"context"

	"anchord/internal/digest"
	"anchord/internal/evidence"
	"anchord/internal/outbox"
)

// JobReader abstracts the outbox interactions needed for API queries.
type JobReader interface {
	List(ctx context.Context, statuses ...outbox.Status) ([]*outbox.Job, error)
	Stats(ctx context.Context) (map[outbox.Status]int, error)
	GetJobByEvidenceID(ctx context.Context, evidenceID string) (*outbox.Job, error)
	GetJobByDigest(ctx context.Context, value digest.Value) (*outbox.Job, error)
	ProofBundle(ctx context.Context, evidenceID string) (*outbox.Bundle, error)
	CreateJob(ctx context.Context, rec *evidence.Record) (*outbox.Job, error)
}

// JobService exposes outbox operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...outbox.Status) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns job counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeStats(stats), nil
}

// Describe fetches a single job by evidence id.
func (s *JobService) Describe(ctx context.Context, evidenceID string) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetJobByEvidenceID(ctx, evidenceID)
	if err != nil || job == nil {
		return nil, err
	}
	converted := FromJob(job)
	return &converted, nil
}

// DescribeByDigest fetches the job holding the given digest, however it was
// originally identified.
func (s *JobService) DescribeByDigest(ctx context.Context, value digest.Value) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetJobByDigest(ctx, value)
	if err != nil || job == nil {
		return nil, err
	}
	converted := FromJob(job)
	return &converted, nil
}

// Bundle fetches the proof bundle for an evidence record.
func (s *JobService) Bundle(ctx context.Context, evidenceID string) (*ProofBundle, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	bundle, err := s.store.ProofBundle(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	converted := FromBundle(bundle)
	return &converted, nil
}

// Submit enqueues an evidence record and returns the resulting job.
func (s *JobService) Submit(ctx context.Context, rec *evidence.Record) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.CreateJob(ctx, rec)
	if err != nil {
		return nil, err
	}
	converted := FromJob(job)
	return &converted, nil
}
