package outbox

import (
	"strings"
	"time"

	"anchord/internal/digest"
)

// Status represents the lifecycle of an outbox job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusClaimed    Status = "claimed"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusConfirming Status = "confirming"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusClaimed,
	StatusSubmitting,
	StatusSubmitted,
	StatusConfirming,
	StatusConfirmed,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var inFlightStatuses = map[Status]struct{}{
	StatusClaimed:    {},
	StatusSubmitting: {},
}

var awaitingConfirmStatuses = map[Status]struct{}{
	StatusSubmitted:  {},
	StatusConfirming: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsInFlightStatus reports whether a status reflects a job held by the submission loop.
func IsInFlightStatus(status Status) bool {
	_, ok := inFlightStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status admits no further transitions.
func IsTerminalStatus(status Status) bool {
	return status == StatusConfirmed || status == StatusFailed
}

// ConfirmationStatus tracks the ledger-side state of a single tx ref.
type ConfirmationStatus string

const (
	TxStatusSubmitted ConfirmationStatus = "submitted"
	TxStatusConfirmed ConfirmationStatus = "confirmed"
	TxStatusFailed    ConfirmationStatus = "failed"
)

// Job represents an outbox job persisted in SQLite, joined with its evidence digest.
type Job struct {
	ID              int64
	EvidenceID      string
	Digest          digest.Value
	Status          Status
	Attempts        int
	ConfirmAttempts int
	NextAttemptAt   *time.Time
	BatchID         string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TxRefs          []TxRef
}

// TxRef is a persisted reference to one ledger submission for a batch.
type TxRef struct {
	ID          int64
	BatchID     string
	ProviderID  string
	TxID        string
	Status      ConfirmationStatus
	SubmittedAt time.Time
	ConfirmedAt *time.Time
}

// BatchRecord is the persisted form of a closed Merkle batch.
type BatchRecord struct {
	ID        string
	Root      digest.Value
	LeafCount int
	CreatedAt time.Time
}

// ProofRecord binds one evidence record to its position and proof in a batch.
type ProofRecord struct {
	EvidenceID string
	BatchID    string
	LeafIndex  int
	ProofJSON  string
}

// Bundle carries everything needed to re-verify an anchored evidence record
// without trusting this store: the digest, the inclusion proof, the batch
// root, and the ledger tx refs for that root.
type Bundle struct {
	EvidenceID string
	Digest     digest.Value
	Status     Status
	BatchID    string
	LeafIndex  int
	ProofJSON  string
	Root       digest.Value
	TxRefs     []TxRef
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total           int
	Pending         int
	InFlight        int
	AwaitingConfirm int
	Confirmed       int
	Failed          int
}

// DatabaseHealth captures diagnostic information about the outbox database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TotalJobs        int
	IntegrityCheck   bool
	Error            string
}
