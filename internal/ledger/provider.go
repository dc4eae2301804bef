// Package ledger abstracts the external ledgers that anchord submits Merkle
// roots to. Providers are slow and unreliable by assumption: every operation
// takes a context, and every failure is classified as transient or permanent
// so the scheduler knows whether to retry.
package ledger

import (
	"context"
	"time"

	"anchord/internal/digest"
)

// ConfirmationStatus is the ledger-side state of a submitted root.
type ConfirmationStatus string

const (
	StatusSubmitted ConfirmationStatus = "submitted"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFailed    ConfirmationStatus = "failed"
)

// TxRef identifies one submission of a root on one ledger.
type TxRef struct {
	Provider    string
	TxID        string
	Status      ConfirmationStatus
	SubmittedAt time.Time
	ConfirmedAt *time.Time
}

// Confirmed reports whether the ledger has durably accepted the submission.
func (r TxRef) Confirmed() bool {
	return r.Status == StatusConfirmed
}

// Provider submits Merkle roots to one external ledger and polls for their
// confirmation.
type Provider interface {
	// ID returns the stable provider identifier recorded with each tx ref.
	ID() string
	// Submit anchors a root and returns a reference to the pending
	// transaction. Submitting the same root twice creates two
	// transactions; idempotence is the caller's concern.
	Submit(ctx context.Context, root digest.Value) (TxRef, error)
	// Confirm re-checks a previously submitted reference. It is idempotent
	// and safe to call on an already confirmed ref.
	Confirm(ctx context.Context, ref TxRef) (TxRef, error)
}
