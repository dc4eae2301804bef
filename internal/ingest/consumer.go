// Package ingest consumes evidence envelopes from an upstream message bus
// and enqueues them as outbox jobs. Delivery is at-least-once; the store's
// digest uniqueness makes replays harmless.
package ingest

import "context"

// Envelope is the wire form of one evidence submission.
type Envelope struct {
	EvidenceID  string            `json:"evidence_id"`
	Digest      string            `json:"digest"`
	PayloadMIME string            `json:"payload_mime,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Consumer defines the interface for evidence message consumers.
type Consumer interface {
	// Consume blocks until an envelope is received or the context is
	// cancelled. The ack callback commits the message: ack(true) when the
	// envelope was handled, ack(false) to leave it for redelivery.
	Consume(ctx context.Context) (env *Envelope, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
