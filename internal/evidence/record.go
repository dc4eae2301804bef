// Package evidence defines the immutable record produced by the upstream
// detection pipeline and anchored by this service.
package evidence

import (
	"fmt"
	"strings"
	"time"

	"anchord/internal/digest"
)

// Record is an evidence record as received from the producer boundary.
// Records are immutable once created; the store rejects duplicate ids.
type Record struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Digest      digest.Value      `json:"digest"`
	PayloadMIME string            `json:"payload_mime,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks the invariants the store relies on before persisting.
// Empty payloads are the producer's problem; by the time a record exists
// it carries a digest, and that digest must match its declared algorithm.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("evidence id is required")
	}
	if err := r.Digest.Validate(); err != nil {
		return fmt.Errorf("evidence %s: %w", r.ID, err)
	}
	return nil
}
