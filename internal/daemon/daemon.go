// Package daemon wires the full service graph together and enforces
// single-instance execution with a file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"prcast/internal/config"
	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/server"
	"prcast/internal/workflow"
)

// Daemon coordinates the workflow manager, the HTTP server, and the queue
// store behind a single start/stop lifecycle.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	intake   *intake.Intake
	workflow *workflow.Manager
	server   *server.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	APIAddress   string
	Health       workflow.Health
}

// New assembles a daemon from initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, in *intake.Intake, wf *workflow.Manager, srv *server.Server) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "prcastd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		intake:   in,
		workflow: wf,
		server:   srv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the worker pool and the HTTP
// server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another prcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.server != nil {
		if err := d.server.Start(runCtx); err != nil {
			d.workflow.Stop()
			d.releaseOnStartFailure()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("prcast daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseOnStartFailure() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.server != nil {
		d.server.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("prcast daemon stopped")
}

// Close stops the daemon and releases the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit forwards a manually constructed event through intake.
func (d *Daemon) Submit(ctx context.Context, event intake.Event) (intake.Result, error) {
	return d.intake.Submit(ctx, event)
}

// Status returns current runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.server != nil {
		status.APIAddress = d.server.Addr()
	}
	if health, err := d.workflow.Health(ctx); err == nil {
		status.Health = health
	}
	return status
}
