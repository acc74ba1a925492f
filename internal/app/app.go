// Package app wires the relay's components together: configuration,
// logging, the session registry, the worker pool, and the listener.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kamilrusin/fusion-relay/internal/audit"
	"github.com/kamilrusin/fusion-relay/internal/config"
	"github.com/kamilrusin/fusion-relay/internal/hub"
	"github.com/kamilrusin/fusion-relay/internal/listener"
	"github.com/kamilrusin/fusion-relay/internal/logging"
	"github.com/kamilrusin/fusion-relay/internal/workerpool"
)

// App holds every long-lived component the relay process needs.
type App struct {
	cfg config.Config
	log *zerolog.Logger

	audit *audit.Log
	reg   *hub.Registry
	pool  *workerpool.Pool
	ln    *listener.Listener
}

// New constructs the application from a loaded configuration. It does not
// bind any socket; that happens in Run.
func New(cfg config.Config) (*App, error) {
	log := logging.New(cfg.Logger)

	auditPath := "fusion-relay-audit.db"
	if cfg.Logger.Root != "" {
		auditPath = cfg.Logger.Root + "/fusion-relay-audit.db"
	}
	auditLog, err := audit.Open(auditPath, log)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	reg := hub.New(log, auditLog)
	pool := workerpool.New(cfg.NumberOfAdditionalThreads+1, cfg.Listener.MaxQueuedConnections, log)
	ln := listener.New(cfg.Listener, log, reg, pool)

	return &App{
		cfg:   cfg,
		log:   log,
		audit: auditLog,
		reg:   reg,
		pool:  pool,
		ln:    ln,
	}, nil
}

// Run binds the listening socket and blocks until ctx is canceled or the
// listener fails. On return every session has been asked to stop and the
// worker pool has drained.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.ln.Serve(ctx)
	}()

	select {
	case err := <-serveErr:
		a.shutdown()
		return err
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		err := <-serveErr
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	a.reg.Shutdown()
	a.pool.Close()
	a.audit.Close()
}
