// Package queue is the offline mutation log. Entries are replayed strictly in
// sequence order; an entry leaves the queue only once it has been applied.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/logging"
	"task-sync/internal/repository"
	"task-sync/internal/store"
)

// Ack records a replayed entry locally. It returns the changes that are
// committed together with the entry's removal from the queue.
type Ack func(ctx context.Context) (repository.ChangeSet, error)

// ApplyFunc replays one entry against the server. On success it returns the
// Ack for the local side, or nil when only the entry has to go.
type ApplyFunc func(ctx context.Context, m domain.Mutation) (Ack, error)

// Failure describes the entry that stopped a drain.
type Failure struct {
	Mutation domain.Mutation
	Err      error
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Applied int
	// Failed is set when an entry could not be applied. It is still at the
	// head of the queue.
	Failed *Failure
	// Retryable reports whether Failed may succeed on a later attempt.
	Retryable bool
}

// Queue is a FIFO of pending mutations persisted in the local store.
type Queue struct {
	store *store.Store
	now   func() time.Time
	log   *log.Entry
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(q *Queue) { q.log = logging.Component(logger, "queue") }
}

// New returns a queue over s.
func New(s *store.Store, opts ...Option) *Queue {
	q := &Queue{store: s, now: time.Now, log: logging.Component(nil, "queue")}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Prepare builds the queue entry for target without storing it. Callers that
// must persist a local change and its entry together pass the result in
// repository.ChangeSet.AppendMutations. The kind comes from the payload type.
func (q *Queue) Prepare(target string, payload domain.Payload) (domain.Mutation, error) {
	if payload == nil {
		return domain.Mutation{}, errors.NewInvalidInputError("payload", nil, "payload is required")
	}
	return domain.Mutation{
		Kind:           payload.Kind(),
		Target:         target,
		Payload:        payload,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     q.now().UTC(),
	}, nil
}

// Enqueue appends a mutation for target and returns it with its sequence.
func (q *Queue) Enqueue(ctx context.Context, target string, payload domain.Payload) (domain.Mutation, error) {
	m, err := q.Prepare(target, payload)
	if err != nil {
		return domain.Mutation{}, err
	}
	seq, err := q.store.AppendMutation(ctx, m)
	if err != nil {
		return domain.Mutation{}, err
	}
	m.Sequence = seq
	q.log.WithFields(log.Fields{"sequence": seq, "kind": m.Kind}).Debug("mutation enqueued")
	return m, nil
}

// Pending returns every queued entry in FIFO order.
func (q *Queue) Pending(ctx context.Context) ([]domain.Mutation, error) {
	return q.store.Mutations(ctx, 0)
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	pending, err := q.Pending(ctx)
	return len(pending), err
}

// Head returns the oldest entry, if any.
func (q *Queue) Head(ctx context.Context) (domain.Mutation, bool, error) {
	head, err := q.store.Mutations(ctx, 1)
	if err != nil || len(head) == 0 {
		return domain.Mutation{}, false, err
	}
	return head[0], true, nil
}

// Remove drops one entry. Callers use it for entries that can never be
// applied, after informing the user.
func (q *Queue) Remove(ctx context.Context, seq int64, extra repository.ChangeSet) error {
	extra.DeleteMutations = append(extra.DeleteMutations, seq)
	return q.store.Commit(ctx, extra)
}

// Clear empties the queue. Only call it after a confirmed full resync.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Commit(ctx, repository.ChangeSet{ClearMutations: true})
}

// Drain replays entries oldest first until the queue is empty, an entry
// fails, or ctx is done. A failing entry stays at the head; nothing behind it
// is attempted.
//
// Once apply has succeeded the Ack runs and its change set is committed with
// the entry's removal even if ctx is canceled meanwhile, so a remote success
// is never lost locally. lock, when not nil, is held from the Ack through the
// commit so the caller's own local writes cannot interleave.
func (q *Queue) Drain(ctx context.Context, lock sync.Locker, apply ApplyFunc) (DrainResult, error) {
	var result DrainResult
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		m, ok, err := q.Head(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}

		ack, err := apply(ctx, m)
		if err != nil {
			result.Failed = &Failure{Mutation: m, Err: err}
			result.Retryable = errors.IsRetryable(err)
			q.log.WithError(err).WithFields(log.Fields{
				"sequence":  m.Sequence,
				"kind":      m.Kind,
				"retryable": result.Retryable,
			}).Info("drain stopped")
			return result, nil
		}

		if err := q.acknowledge(context.WithoutCancel(ctx), lock, m, ack); err != nil {
			return result, err
		}
		result.Applied++
	}
}

func (q *Queue) acknowledge(ctx context.Context, lock sync.Locker, m domain.Mutation, ack Ack) error {
	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	var cs repository.ChangeSet
	if ack != nil {
		var err error
		if cs, err = ack(ctx); err != nil {
			return err
		}
	}
	cs.DeleteMutations = append(cs.DeleteMutations, m.Sequence)
	return q.store.Commit(ctx, cs)
}
