package outbox

import (
	"errors"
	"strings"
)

// ErrDuplicateEvidence is returned when evidence with the same digest has
// already been enqueued. Callers treat it as success for at-least-once
// delivery.
var ErrDuplicateEvidence = errors.New("evidence already enqueued")

// ErrNotFound is returned when a job or evidence record does not exist.
var ErrNotFound = errors.New("not found")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
