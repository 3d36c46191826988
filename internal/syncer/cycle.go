package syncer

import (
	"context"
	stderrors "errors"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/ordering"
	"task-sync/internal/queue"
	"task-sync/internal/remote"
	"task-sync/internal/repository"
)

type cycleStats struct {
	pulled  int
	applied int
	dropped int
}

func (c *Coordinator) cycle(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "sync.cycle", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var stats cycleStats
	err := c.runCycle(ctx, &stats)

	span.SetAttributes(
		attribute.Int("sync.pulled", stats.pulled),
		attribute.Int("sync.applied", stats.applied),
		attribute.Int("sync.dropped", stats.dropped),
		attribute.String("sync.state", c.State().String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.log.WithFields(log.Fields{
		"pulled":  stats.pulled,
		"applied": stats.applied,
		"dropped": stats.dropped,
	}).Debug("sync cycle finished")
	return err
}

func (c *Coordinator) runCycle(ctx context.Context, stats *cycleStats) error {
	c.setState(StateSyncing)

	if err := c.pull(ctx, stats); err != nil {
		return c.fail(ctx, err)
	}

	for {
		res, err := c.queue.Drain(ctx, &c.writeMu, c.apply)
		stats.applied += res.Applied
		if err != nil {
			return c.fail(ctx, err)
		}
		if res.Failed == nil {
			break
		}
		if err := c.drop(ctx, res, stats); err != nil {
			return c.fail(ctx, err)
		}
		c.setState(StateSyncing)
	}

	if stats.applied > 0 || stats.dropped > 0 {
		if err := c.pull(ctx, stats); err != nil {
			return c.fail(ctx, err)
		}
	}

	if err := c.store.SetMeta(ctx, LastSyncMetadataKey, c.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return c.fail(ctx, err)
	}
	c.resetBackoff()
	c.setState(StateSynced)
	return nil
}

// drop removes a failed entry that can never succeed. Retryable and auth
// failures, and cancellation, are returned unchanged so the entry stays.
func (c *Coordinator) drop(ctx context.Context, res queue.DrainResult, stats *cycleStats) error {
	f := res.Failed
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if res.Retryable || errors.IsErrorType(f.Err, errors.ErrorTypeAuth) {
		return f.Err
	}

	m := f.Mutation
	entry := c.log.WithError(f.Err).WithFields(log.Fields{
		"sequence": m.Sequence,
		"kind":     m.Kind,
		"task":     m.Target,
	})

	// Only an update or delete names a server task that can vanish. A
	// conflict on anything else keeps the entry and is retried.
	conflict := errors.IsErrorType(f.Err, errors.ErrorTypeConflict)
	if conflict && m.Kind != domain.MutationUpdate && m.Kind != domain.MutationDelete {
		entry.Warn("conflict on a change without a server target, keeping it queued")
		return errors.NewRemoteUnavailableError(string(m.Kind), 0, f.Err)
	}

	if conflict {
		c.setState(StateConflictResolution)
		var extra repository.ChangeSet
		if m.Target != "" {
			extra.DeleteTasks = []string{m.Target}
		}
		if err := c.remove(ctx, m.Sequence, extra); err != nil {
			return err
		}
		stats.dropped++
		entry.Warn("task was deleted on another device, dropped queued change")
		c.emit(Event{Type: EventConflictDropped, State: StateConflictResolution, Mutation: m, Err: f.Err})
		return nil
	}

	// The server will never accept this change. Forget the local copy of a
	// created or edited task so the next pull restores what the server has.
	var extra repository.ChangeSet
	if m.Kind == domain.MutationCreate || m.Kind == domain.MutationUpdate {
		extra.DeleteTasks = []string{m.Target}
	}
	if err := c.remove(ctx, m.Sequence, extra); err != nil {
		return err
	}
	stats.dropped++
	entry.Warn("server rejected queued change, dropped it")
	c.emit(Event{Type: EventMutationRejected, State: c.State(), Mutation: m, Err: f.Err})
	return nil
}

func (c *Coordinator) remove(ctx context.Context, seq int64, extra repository.ChangeSet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.queue.Remove(ctx, seq, extra)
}

// fail records why a cycle stopped and returns err.
func (c *Coordinator) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		c.setState(StateOffline)
		return ctx.Err()
	}

	switch {
	case errors.IsErrorType(err, errors.ErrorTypeAuth):
		c.mu.Lock()
		c.authRequired = true
		c.mu.Unlock()
		c.setState(StateOffline)
		c.log.WithError(err).Warn("server rejected credentials, sync paused")
		c.emit(Event{Type: EventAuthRequired, State: StateOffline, Err: err})
	case errors.IsRetryable(err):
		c.setState(StateOffline)
		c.log.WithError(err).Info("server unreachable, changes stay queued")
		c.scheduleRetry()
	default:
		c.setState(StateOffline)
		c.log.WithError(err).Error("sync cycle failed")
	}
	return err
}

// pull merges the server list into the local store in one batch.
//
// A server task replaces the local copy unless the local copy is strictly
// newer or has queued changes. Server-id tasks missing from the server are
// removed unless changes to them are queued; those changes will surface the
// conflict. Tasks still waiting for their create are kept. Finally,
// provisional positions that collide with server positions are resolved.
func (c *Coordinator) pull(ctx context.Context, stats *cycleStats) error {
	remoteTasks, err := c.list(ctx)
	if err != nil {
		return err
	}
	stats.pulled = len(remoteTasks)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	pending, err := c.queue.Pending(ctx)
	if err != nil {
		return err
	}
	protected := make(map[string]bool)
	deleted := make(map[string]bool)
	ordered := make(map[string]bool)
	for _, m := range pending {
		switch p := m.Payload.(type) {
		case domain.DeletePayload:
			deleted[m.Target] = true
			protected[m.Target] = true
		case domain.ReorderPayload:
			for _, u := range p.Order {
				ordered[u.ID] = true
			}
		default:
			protected[m.Target] = true
		}
	}

	local, err := c.store.GetAll(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Task, len(local))
	for _, t := range local {
		byID[t.ID] = t
	}

	var cs repository.ChangeSet
	merged := make([]domain.Task, 0, len(remoteTasks)+len(local))
	seen := make(map[string]bool, len(remoteTasks))
	for _, rt := range remoteTasks {
		t := rt.ToDomain()
		seen[t.ID] = true
		l, ok := byID[t.ID]
		switch {
		case deleted[t.ID]:
			continue
		case !ok:
			cs.PutTasks = append(cs.PutTasks, t)
			merged = append(merged, t)
		case protected[t.ID] || l.UpdatedAt.After(t.UpdatedAt):
			merged = append(merged, l)
		default:
			if ordered[t.ID] {
				t.Position = l.Position
			}
			if !sameTask(l, t) {
				cs.PutTasks = append(cs.PutTasks, t)
			}
			merged = append(merged, t)
		}
	}
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		if l.IsTemporary() || protected[l.ID] {
			merged = append(merged, l)
			continue
		}
		cs.DeleteTasks = append(cs.DeleteTasks, l.ID)
	}

	if err := ordering.DetectCollisions(merged); err != nil {
		c.log.WithError(err).Debug("resolving provisional positions")
		_, moved := ordering.ResolveCollisions(merged)
		cs.PutTasks = replaceTasks(cs.PutTasks, moved)
	}

	if cs.IsEmpty() {
		return nil
	}
	return c.store.Commit(ctx, cs)
}

// apply replays one queued mutation against the server. The returned Ack
// runs with writeMu held and records the result against the current local
// state.
func (c *Coordinator) apply(ctx context.Context, m domain.Mutation) (queue.Ack, error) {
	switch p := m.Payload.(type) {
	case domain.CreatePayload:
		return c.applyCreate(ctx, m, p)
	case domain.UpdatePayload:
		return c.applyUpdate(ctx, m, p)
	case domain.DeletePayload:
		return c.applyDelete(ctx, m)
	case domain.ReorderPayload:
		return c.applyReorder(ctx, m, p)
	default:
		return nil, errors.NewInvalidInputError("mutation", m.Kind, "unknown mutation kind")
	}
}

func (c *Coordinator) applyCreate(ctx context.Context, m domain.Mutation, p domain.CreatePayload) (queue.Ack, error) {
	req := remote.CreateRequest{
		EncryptedText: string(p.EncryptedText),
		Completed:     p.Completed,
		Category:      p.Category,
		Priority:      string(p.Priority),
		Tags:          p.Tags,
		Position:      p.Position,
	}
	// The position may have moved since the entry was queued.
	if local, ok, err := c.store.Get(ctx, m.Target); err != nil {
		return nil, err
	} else if ok {
		req.Position = local.Position
	}

	var created remote.Task
	err := c.call(ctx, "create", func(ctx context.Context) (err error) {
		created, err = c.remote.Create(ctx, req, m.IdempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (repository.ChangeSet, error) {
		cs := repository.ChangeSet{RetargetMutations: map[string]string{m.Target: created.ID}}
		local, ok, err := c.store.Get(ctx, m.Target)
		if err != nil {
			return repository.ChangeSet{}, err
		}
		if ok {
			server := created.ToDomain()
			local.ID = server.ID
			local.Position = server.Position
			local.CreatedAt = server.CreatedAt
			local.UpdatedAt = server.UpdatedAt
			cs.DeleteTasks = []string{m.Target}
			cs.PutTasks = []domain.Task{local}
		}
		c.log.WithFields(log.Fields{"task": m.Target, "id": created.ID}).Debug("create acknowledged")
		return cs, nil
	}, nil
}

func (c *Coordinator) applyUpdate(ctx context.Context, m domain.Mutation, p domain.UpdatePayload) (queue.Ack, error) {
	req := remote.UpdateRequest{
		Completed: p.Completed,
		Category:  p.Category,
		Tags:      p.Tags,
	}
	if p.EncryptedText != nil {
		text := string(*p.EncryptedText)
		req.EncryptedText = &text
	}
	if p.Priority != nil {
		priority := string(*p.Priority)
		req.Priority = &priority
	}

	var updated remote.Task
	err := c.call(ctx, "update", func(ctx context.Context) (err error) {
		updated, err = c.remote.Update(ctx, m.Target, req, m.IdempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (repository.ChangeSet, error) {
		local, ok, err := c.store.Get(ctx, m.Target)
		if err != nil || !ok {
			return repository.ChangeSet{}, err
		}
		local.UpdatedAt = updated.UpdatedAt.UTC()
		return repository.ChangeSet{PutTasks: []domain.Task{local}}, nil
	}, nil
}

func (c *Coordinator) applyDelete(ctx context.Context, m domain.Mutation) (queue.Ack, error) {
	err := c.call(ctx, "delete", func(ctx context.Context) error {
		return c.remote.Delete(ctx, m.Target, m.IdempotencyKey)
	})
	// Already gone is what we wanted.
	if err != nil && !errors.IsErrorType(err, errors.ErrorTypeConflict) {
		return nil, err
	}
	return func(context.Context) (repository.ChangeSet, error) {
		return repository.ChangeSet{DeleteTasks: []string{m.Target}}, nil
	}, nil
}

func (c *Coordinator) applyReorder(ctx context.Context, m domain.Mutation, p domain.ReorderPayload) (queue.Ack, error) {
	var result []remote.Task
	err := c.call(ctx, "reorder", func(ctx context.Context) (err error) {
		result, err = c.remote.Reorder(ctx, p.Order, m.IdempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (repository.ChangeSet, error) {
		local, err := c.store.GetAll(ctx)
		if err != nil {
			return repository.ChangeSet{}, err
		}
		byID := make(map[string]domain.Task, len(local))
		for _, t := range local {
			byID[t.ID] = t
		}
		var cs repository.ChangeSet
		for _, rt := range result {
			t, ok := byID[rt.ID]
			if !ok {
				continue
			}
			t.Position = rt.Position
			t.UpdatedAt = rt.UpdatedAt.UTC()
			cs.PutTasks = append(cs.PutTasks, t)
		}
		return cs, nil
	}, nil
}

func (c *Coordinator) list(ctx context.Context) ([]remote.Task, error) {
	var tasks []remote.Task
	err := c.call(ctx, "list", func(ctx context.Context) (err error) {
		tasks, err = c.remote.List(ctx)
		return err
	})
	return tasks, err
}

// call runs fn with the per-request timeout. A timeout that is not the
// caller's own deadline becomes a retryable timeout error.
func (c *Coordinator) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.requestTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(operation, c.requestTimeout.String())
	}
	return err
}

func sameTask(a, b domain.Task) bool {
	if a.EncryptedText != b.EncryptedText || a.Completed != b.Completed ||
		a.Category != b.Category || a.Priority != b.Priority ||
		a.Position != b.Position || len(a.Tags) != len(b.Tags) ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}

// replaceTasks returns puts with every task in moved added or substituted.
func replaceTasks(puts, moved []domain.Task) []domain.Task {
	index := make(map[string]int, len(puts))
	for i, t := range puts {
		index[t.ID] = i
	}
	for _, t := range moved {
		if i, ok := index[t.ID]; ok {
			puts[i] = t
			continue
		}
		index[t.ID] = len(puts)
		puts = append(puts, t)
	}
	return puts
}
