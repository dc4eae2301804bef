// Package daemon ties the anchoring services together: the outbox store, the
// scheduler loops, the optional ingest runner, and the HTTP API. It enforces
// single-instance execution through a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"anchord/internal/config"
	"anchord/internal/ingest"
	"anchord/internal/ledger"
	"anchord/internal/logging"
	"anchord/internal/outbox"
	"anchord/internal/scheduler"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *outbox.Store
	scheduler *scheduler.Scheduler
	providers *ledger.Fanout
	ingester  *ingest.Runner

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	OutboxDBPath string
	LockFilePath string
	Provider     string
	Scheduler    scheduler.Health
	QueueStats   map[outbox.Status]int
}

// New constructs a daemon with initialized dependencies. The ingest runner is
// optional and may be nil.
func New(cfg *config.Config, store *outbox.Store, providers *ledger.Fanout, sched *scheduler.Scheduler, ingester *ingest.Runner, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || providers == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, providers, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "anchord.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: sched,
		providers: providers,
		ingester:  ingester,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the scheduler, ingest runner,
// and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another anchord instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.scheduler.Start(runCtx); err != nil {
		d.releaseStartup()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.ingester != nil {
		if err := d.ingester.Start(runCtx); err != nil {
			d.scheduler.Stop()
			d.releaseStartup()
			return fmt.Errorf("start ingest: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			if d.ingester != nil {
				d.ingester.Stop()
			}
			d.scheduler.Stop()
			d.releaseStartup()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("anchord daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStartup() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.ingester != nil {
		d.ingester.Stop()
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("anchord daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address, or empty when the API is disabled
// or not started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status reports current daemon state.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		OutboxDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
		Scheduler:    d.scheduler.Health(),
	}
	if members := d.providers.Providers(); len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, member := range members {
			ids = append(ids, member.ID())
		}
		status.Provider = ids[0]
		if len(ids) > 1 {
			status.Provider = fmt.Sprintf("fanout(%d)", len(ids))
		}
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.QueueStats = stats
	} else {
		d.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	return status
}
