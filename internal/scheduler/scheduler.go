// Package scheduler runs the two anchoring loops. The submission loop closes
// batches of pending jobs and submits their Merkle root; the confirmation
// loop polls the ledgers until every submission is confirmed. The loops share
// no in-memory state and coordinate only through the outbox store, so either
// side can crash and restart without the other noticing.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"anchord/internal/config"
	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/outbox"
)

// confirmFetchLimit bounds how many awaiting jobs a single confirmation pass
// loads.
const confirmFetchLimit = 256

// Scheduler owns the submission and confirmation loops.
type Scheduler struct {
	cfg       *config.Config
	store     *outbox.Store
	providers *ledger.Fanout
	logger    *slog.Logger
	backoff   Backoff

	submitInterval  time.Duration
	confirmInterval time.Duration
	batchMaxWait    time.Duration
	staleTimeout    time.Duration

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastSubmitPoll  time.Time
	lastConfirmPoll time.Time
}

// Health is the scheduler liveness surface exposed through the daemon API.
type Health struct {
	Running          bool
	SubmitLoopAlive  bool
	ConfirmLoopAlive bool
	LastSubmitPoll   time.Time
	LastConfirmPoll  time.Time
}

// Healthy reports whether both loops polled recently.
func (h Health) Healthy() bool {
	return h.Running && h.SubmitLoopAlive && h.ConfirmLoopAlive
}

// New constructs a scheduler over the given store and provider set.
func New(cfg *config.Config, store *outbox.Store, providers *ledger.Fanout, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:             cfg,
		store:           store,
		providers:       providers,
		logger:          logging.NewComponentLogger(logger, "scheduler"),
		backoff:         NewBackoff(cfg.Anchor),
		submitInterval:  time.Duration(cfg.Anchor.SubmitInterval) * time.Second,
		confirmInterval: time.Duration(cfg.Anchor.ConfirmInterval) * time.Second,
		batchMaxWait:    time.Duration(cfg.Anchor.BatchMaxWait) * time.Second,
		staleTimeout:    time.Duration(cfg.Anchor.StaleClaimTimeout) * time.Second,
	}
}

// Start begins background processing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(2)
	s.mu.Unlock()

	go s.runSubmitLoop(runCtx)
	go s.runConfirmLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Health reports loop liveness. A loop counts as alive when it polled within
// twice its configured interval.
func (s *Scheduler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return Health{
		Running:          s.running,
		SubmitLoopAlive:  s.running && !s.lastSubmitPoll.IsZero() && now.Sub(s.lastSubmitPoll) <= 2*s.submitInterval,
		ConfirmLoopAlive: s.running && !s.lastConfirmPoll.IsZero() && now.Sub(s.lastConfirmPoll) <= 2*s.confirmInterval,
		LastSubmitPoll:   s.lastSubmitPoll,
		LastConfirmPoll:  s.lastConfirmPoll,
	}
}

func (s *Scheduler) runSubmitLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.submitInterval)
	defer ticker.Stop()

	s.touchSubmitPoll()
	s.runSubmissionPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.touchSubmitPoll()
			s.runSubmissionPass(ctx)
		}
	}
}

func (s *Scheduler) runConfirmLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.confirmInterval)
	defer ticker.Stop()

	s.touchConfirmPoll()
	s.runConfirmationPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.touchConfirmPoll()
			s.runConfirmationPass(ctx)
		}
	}
}

func (s *Scheduler) touchSubmitPoll() {
	s.mu.Lock()
	s.lastSubmitPoll = time.Now()
	s.mu.Unlock()
}

func (s *Scheduler) touchConfirmPoll() {
	s.mu.Lock()
	s.lastConfirmPoll = time.Now()
	s.mu.Unlock()
}
