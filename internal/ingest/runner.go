package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"anchord/internal/digest"
	"anchord/internal/evidence"
	"anchord/internal/logging"
	"anchord/internal/outbox"
)

// Runner drains a consumer into the outbox store. Duplicate evidence is acked
// and dropped; transient store failures nack so the bus redelivers.
type Runner struct {
	consumer Consumer
	store    *outbox.Store
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a runner over the given consumer and store.
func NewRunner(consumer Consumer, store *outbox.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		consumer: consumer,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "ingest"),
	}
}

// Start begins consuming in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("ingest runner already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(runCtx)
	return nil
}

// Stop terminates consumption and waits for the loop to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		env, ack, err := r.consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			r.logger.Warn("consume failed", logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		r.handle(ctx, env, ack)
	}
}

// Handle processes one envelope. Exposed for synchronous use in tests and
// the API boundary shares its semantics.
func (r *Runner) handle(ctx context.Context, env *Envelope, ack func(success bool)) {
	rec, err := RecordFromEnvelope(env)
	if err != nil {
		// Malformed envelopes can never succeed; ack so they are not
		// redelivered forever.
		r.logger.Warn("dropping malformed envelope",
			logging.String(logging.FieldEvidenceID, env.EvidenceID),
			logging.Error(err),
		)
		ack(true)
		return
	}

	_, err = r.store.CreateJob(ctx, rec)
	switch {
	case err == nil:
		r.logger.Info("evidence enqueued", logging.String(logging.FieldEvidenceID, rec.ID))
		ack(true)
	case errors.Is(err, outbox.ErrDuplicateEvidence):
		r.logger.Debug("duplicate evidence dropped", logging.String(logging.FieldEvidenceID, rec.ID))
		ack(true)
	default:
		r.logger.Error("enqueue evidence failed",
			logging.String(logging.FieldEvidenceID, rec.ID),
			logging.Error(err),
		)
		ack(false)
	}
}

// RecordFromEnvelope validates an envelope and converts it to an evidence
// record.
func RecordFromEnvelope(env *Envelope) (*evidence.Record, error) {
	if env == nil {
		return nil, errors.New("envelope is nil")
	}
	id := strings.TrimSpace(env.EvidenceID)
	if id == "" {
		return nil, errors.New("envelope missing evidence_id")
	}
	value, err := digest.Parse(env.Digest)
	if err != nil {
		return nil, fmt.Errorf("envelope digest: %w", err)
	}
	return &evidence.Record{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Digest:      value,
		PayloadMIME: strings.TrimSpace(env.PayloadMIME),
		Metadata:    env.Metadata,
	}, nil
}
