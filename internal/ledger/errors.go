package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient tags failures worth retrying: timeouts, connection
	// resets, ledger congestion.
	ErrTransient = errors.New("transient ledger failure")
	// ErrPermanent tags failures that retrying cannot fix: rejected
	// payloads, invalid configuration, unknown transactions.
	ErrPermanent = errors.New("permanent ledger failure")
)

// Wrap builds an error message that includes provider context while tagging it
// with the provided marker for later retry classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, provider, operation, message string, err error) error {
	detail := buildDetail(provider, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error should be retried with backoff.
// Unclassified errors count as transient so a new failure mode never
// permanently fails a job by accident.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPermanent)
}

// IsPermanent reports whether an error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func buildDetail(provider, operation, message string) string {
	parts := make([]string, 0, 3)
	if provider = strings.TrimSpace(provider); provider != "" {
		parts = append(parts, provider)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "ledger failure"
	}
	return strings.Join(parts, ": ")
}
