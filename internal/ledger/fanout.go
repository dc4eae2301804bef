package ledger

import (
	"context"
	"errors"
	"fmt"

	"anchord/internal/digest"
)

// Fanout submits each root to every member provider and tracks one tx ref per
// member. A root counts as confirmed only when every member has confirmed it.
type Fanout struct {
	members []Provider
	byID    map[string]Provider
}

// NewFanout builds a fan-out over the given members. Member IDs must be
// unique; the confirmation loop routes refs back to providers by ID.
func NewFanout(members ...Provider) (*Fanout, error) {
	if len(members) == 0 {
		return nil, errors.New("fanout requires at least one provider")
	}
	byID := make(map[string]Provider, len(members))
	for _, member := range members {
		id := member.ID()
		if id == "" {
			return nil, errors.New("fanout member has empty id")
		}
		if _, exists := byID[id]; exists {
			return nil, fmt.Errorf("duplicate fanout member id %q", id)
		}
		byID[id] = member
	}
	return &Fanout{members: members, byID: byID}, nil
}

// Providers returns the member providers in construction order.
func (f *Fanout) Providers() []Provider {
	cp := make([]Provider, len(f.members))
	copy(cp, f.members)
	return cp
}

// ProviderByID returns the member with the given id, or nil.
func (f *Fanout) ProviderByID(id string) Provider {
	return f.byID[id]
}

// SubmitAll submits the root to every member. It returns the refs that were
// accepted alongside any member errors joined together; when err is non-nil
// the caller classifies it with IsPermanent to decide between retry and fail.
func (f *Fanout) SubmitAll(ctx context.Context, root digest.Value) ([]TxRef, error) {
	refs := make([]TxRef, 0, len(f.members))
	var errs []error
	for _, member := range f.members {
		ref, err := member.Submit(ctx, root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errors.Join(errs...)
}

// ConfirmAll polls every unconfirmed ref once and returns the updated set.
// Already confirmed refs pass through untouched. Member errors are joined;
// a permanent member error fails the whole set.
func (f *Fanout) ConfirmAll(ctx context.Context, refs []TxRef) ([]TxRef, error) {
	updated := make([]TxRef, 0, len(refs))
	var errs []error
	for _, ref := range refs {
		if ref.Confirmed() {
			updated = append(updated, ref)
			continue
		}
		member := f.byID[ref.Provider]
		if member == nil {
			errs = append(errs, Wrap(ErrPermanent, ref.Provider, "confirm", "no provider configured for ref", nil))
			updated = append(updated, ref)
			continue
		}
		next, err := member.Confirm(ctx, ref)
		if err != nil {
			errs = append(errs, err)
		}
		updated = append(updated, next)
	}
	return updated, errors.Join(errs...)
}

// AllConfirmed reports whether every ref in the set has been confirmed.
func AllConfirmed(refs []TxRef) bool {
	if len(refs) == 0 {
		return false
	}
	for _, ref := range refs {
		if !ref.Confirmed() {
			return false
		}
	}
	return true
}
