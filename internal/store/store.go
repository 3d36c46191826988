// Package store is the local task store. It selects a storage backend once at
// Open and exposes task, mutation and metadata operations over it.
package store

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/logging"
	"task-sync/internal/repository"
	"task-sync/internal/repository/kv"
	"task-sync/internal/repository/sqlite"
)

// Config selects and configures the backends.
type Config struct {
	// Path is the SQLite database file, or ":memory:".
	Path string
	// FallbackDir holds the file-backed degraded store.
	FallbackDir string
	// RedisURL, when set, makes the degraded store use Redis instead of files.
	RedisURL string
	// ForceDegraded skips the primary backend.
	ForceDegraded bool
	// DirPerm is used when creating the database directory. Zero means 0700.
	DirPerm os.FileMode
	Logger  log.FieldLogger
}

// Store is the handle callers hold for the lifetime of a session.
type Store struct {
	backend  repository.Backend
	degraded bool
	log      *log.Entry
}

// Open selects the primary SQLite backend, falling back to the key/value
// backend if it cannot be opened. The choice is logged once and fixed for
// the lifetime of the Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	entry := logging.Component(cfg.Logger, "store")

	if !cfg.ForceDegraded {
		if cfg.Path != ":memory:" && cfg.Path != "" {
			perm := cfg.DirPerm
			if perm == 0 {
				perm = 0o700
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Path), perm); err != nil {
				entry.WithError(err).Debug("could not create database directory")
			}
		}
		primary, err := sqlite.New(ctx, cfg.Path)
		if err == nil {
			entry.WithField("backend", primary.Name()).Debug("local store opened")
			return &Store{backend: primary, log: entry}, nil
		}
		entry.WithError(errors.NewStorageUnavailableError(sqlite.BackendName, err)).
			Warn("primary store unavailable, falling back to degraded non-transactional storage")
	}

	fallback, err := openFallback(ctx, cfg)
	if err != nil {
		return nil, errors.NewStorageUnavailableError("fallback", err)
	}
	entry.WithField("backend", fallback.Name()).Warn("local store running in degraded mode: batch writes are not atomic")
	return &Store{backend: fallback, degraded: true, log: entry}, nil
}

func openFallback(ctx context.Context, cfg Config) (repository.Backend, error) {
	if cfg.RedisURL != "" {
		driver, err := kv.NewRedisDriver(ctx, cfg.RedisURL, "tasks")
		if err != nil {
			return nil, err
		}
		return kv.New(driver, "kv-redis"), nil
	}
	driver, err := kv.NewFileDriver(cfg.FallbackDir)
	if err != nil {
		return nil, err
	}
	return kv.New(driver, "kv-file"), nil
}

// New wraps an already opened backend.
func New(backend repository.Backend, logger log.FieldLogger) *Store {
	return &Store{
		backend:  backend,
		degraded: !backend.Atomic(),
		log:      logging.Component(logger, "store"),
	}
}

// Backend returns the active backend name.
func (s *Store) Backend() string { return s.backend.Name() }

// Degraded reports whether the non-transactional fallback is active.
func (s *Store) Degraded() bool { return s.degraded }

// Atomic reports whether PutMany and Commit are all-or-nothing.
func (s *Store) Atomic() bool { return s.backend.Atomic() }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// GetAll returns every task ordered by position, createdAt, then id.
func (s *Store) GetAll(ctx context.Context) ([]domain.Task, error) {
	return s.backend.ListTasks(ctx)
}

// Get returns the task with id and whether it exists.
func (s *Store) Get(ctx context.Context, id string) (domain.Task, bool, error) {
	task, err := s.backend.GetTask(ctx, id)
	if errors.IsErrorType(err, errors.ErrorTypeNotFound) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, true, nil
}

// Put stores a single task.
func (s *Store) Put(ctx context.Context, task domain.Task) error {
	return s.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{task}})
}

// PutMany stores tasks as one batch. The batch is atomic only when Atomic
// reports true; in degraded mode a failure may leave a prefix applied.
func (s *Store) PutMany(ctx context.Context, tasks []domain.Task) error {
	return s.Commit(ctx, repository.ChangeSet{PutTasks: tasks})
}

// Delete removes a task. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.Commit(ctx, repository.ChangeSet{DeleteTasks: []string{id}})
}

// Clear removes every task.
func (s *Store) Clear(ctx context.Context) error {
	return s.Commit(ctx, repository.ChangeSet{ClearTasks: true})
}

// Commit applies a change set through the active backend.
func (s *Store) Commit(ctx context.Context, cs repository.ChangeSet) error {
	if err := s.backend.Commit(ctx, cs); err != nil {
		if errors.ShouldLogError(err) {
			s.log.WithError(err).WithField("atomic", s.backend.Atomic()).Error("commit failed")
		}
		return err
	}
	return nil
}

// GetMeta returns a metadata value.
func (s *Store) GetMeta(ctx context.Context, name string) (string, bool, error) {
	return s.backend.GetMeta(ctx, name)
}

// SetMeta stores a metadata value.
func (s *Store) SetMeta(ctx context.Context, name, value string) error {
	return s.Commit(ctx, repository.ChangeSet{Meta: map[string]string{name: value}})
}

// AppendMutation persists a queue entry and returns its sequence.
func (s *Store) AppendMutation(ctx context.Context, m domain.Mutation) (int64, error) {
	return s.backend.AppendMutation(ctx, m)
}

// Mutations returns queued entries in FIFO order. limit <= 0 returns all.
func (s *Store) Mutations(ctx context.Context, limit int) ([]domain.Mutation, error) {
	return s.backend.ListMutations(ctx, limit)
}
