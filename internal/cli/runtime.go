package cli

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"task-sync/internal/config"
	"task-sync/internal/logging"
	"task-sync/internal/queue"
	"task-sync/internal/remote"
	"task-sync/internal/store"
	"task-sync/internal/syncer"
)

// Runtime holds everything a command needs for one invocation.
type Runtime struct {
	Store       *store.Store
	Coordinator *syncer.Coordinator
	Logger      *log.Logger
}

// Opener builds the runtime once flags have been applied to the config.
type Opener func(ctx context.Context, cfg *config.Config, onEvent func(syncer.Event)) (*Runtime, error)

// OpenRuntime wires the local store, the mutation queue, the remote client
// and the coordinator from cfg. Without a remote URL the coordinator stays
// offline and every change waits in the queue.
func OpenRuntime(ctx context.Context, cfg *config.Config, onEvent func(syncer.Event)) (*Runtime, error) {
	level := cfg.Logging.Level
	if cfg.Application.Verbose {
		level = log.DebugLevel.String()
	}
	logger, err := logging.New(logging.Options{Level: level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	s, err := config.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var api remote.API
	if cfg.RemoteEnabled() {
		client, err := remote.NewClient(cfg.Remote.BaseURL, remote.StaticToken(cfg.Remote.Token),
			remote.WithRequestTimeout(cfg.Remote.RequestTimeout),
			remote.WithLogger(logger),
		)
		if err != nil {
			s.Close()
			return nil, err
		}
		api = client
	}

	return NewRuntime(s, api, cfg, logger, onEvent), nil
}

// NewRuntime assembles a runtime around an open store. A nil api keeps the
// coordinator offline.
func NewRuntime(s *store.Store, api remote.API, cfg *config.Config, logger *log.Logger, onEvent func(syncer.Event)) *Runtime {
	if logger == nil {
		logger = logging.Discard()
	}
	q := queue.New(s, queue.WithLogger(logger))
	coordinator := syncer.New(s, q, api, syncer.Options{
		Logger:         logger,
		RequestTimeout: cfg.Remote.RequestTimeout,
		Backoff:        cfg.NewBackoff(),
		OnEvent:        onEvent,
		Iterations:     cfg.Crypto.Iterations,
	})
	if api == nil {
		coordinator.SetOnline(false)
	}
	return &Runtime{Store: s, Coordinator: coordinator, Logger: logger}
}

// Close stops the coordinator and closes the store.
func (r *Runtime) Close() error {
	if err := r.Coordinator.Close(); err != nil {
		r.Store.Close()
		return err
	}
	return r.Store.Close()
}
