package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"anchord/internal/digest"
)

// Stub is an in-process provider that accepts every root and confirms it on
// the first poll. It keeps the daemon runnable with no ledger connectivity
// and backs most scheduler tests.
type Stub struct {
	id string
}

// NewStub returns a stub provider. An empty id defaults to "stub".
func NewStub(id string) *Stub {
	if id == "" {
		id = "stub"
	}
	return &Stub{id: id}
}

func (s *Stub) ID() string {
	return s.id
}

func (s *Stub) Submit(ctx context.Context, root digest.Value) (TxRef, error) {
	if err := ctx.Err(); err != nil {
		return TxRef{}, Wrap(ErrTransient, s.id, "submit", "context done", err)
	}
	if err := root.Validate(); err != nil {
		return TxRef{}, Wrap(ErrPermanent, s.id, "submit", "invalid root", err)
	}
	return TxRef{
		Provider:    s.id,
		TxID:        fmt.Sprintf("stub:%s", uuid.NewString()),
		Status:      StatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (s *Stub) Confirm(ctx context.Context, ref TxRef) (TxRef, error) {
	if err := ctx.Err(); err != nil {
		return ref, Wrap(ErrTransient, s.id, "confirm", "context done", err)
	}
	if ref.TxID == "" {
		return ref, Wrap(ErrPermanent, s.id, "confirm", "missing tx id", nil)
	}
	if ref.Confirmed() {
		return ref, nil
	}
	now := time.Now().UTC()
	ref.Status = StatusConfirmed
	ref.ConfirmedAt = &now
	return ref, nil
}
