package ordering

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/logging"
	"task-sync/internal/repository"
	"task-sync/internal/store"
)

// Change is the local effect of an ordering operation. Nothing is written
// until it is committed, so callers can add their queue entries to the same
// batch.
type Change struct {
	Writes repository.ChangeSet
	// Order is the full order after the change, or nil when no position moved.
	Order []domain.PositionUpdate
}

// Reconciler plans position changes against the tasks in a store.
type Reconciler struct {
	store *store.Store
	now   func() time.Time
	log   *log.Entry
}

// NewReconciler returns a reconciler over s. A nil now uses time.Now.
func NewReconciler(s *store.Store, now func() time.Time, logger log.FieldLogger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: s, now: now, log: logging.Component(logger, "ordering")}
}

// Next returns the provisional position for a new task.
func (r *Reconciler) Next(ctx context.Context) (int64, error) {
	tasks, err := r.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return NextPosition(tasks), nil
}

// Remove plans deleting id and closing the gap it leaves.
func (r *Reconciler) Remove(ctx context.Context, id string) (Change, error) {
	tasks, err := r.store.GetAll(ctx)
	if err != nil {
		return Change{}, err
	}

	remaining := make([]domain.Task, 0, len(tasks))
	found := false
	for _, t := range tasks {
		if t.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, t)
	}
	if !found {
		return Change{}, errors.NewNotFoundError("task", id)
	}

	all, changed := Normalize(remaining)
	c := Change{Writes: repository.ChangeSet{DeleteTasks: []string{id}}}
	if len(changed) > 0 {
		c.Writes.PutTasks = r.touch(changed)
		c.Order = domain.Positions(all)
	}
	return c, nil
}

// Reorder plans the full ordering ids. Order is always set so the same
// ordering can be submitted again.
func (r *Reconciler) Reorder(ctx context.Context, ids []string) (Change, error) {
	tasks, err := r.store.GetAll(ctx)
	if err != nil {
		return Change{}, err
	}
	ordered, err := ApplyOrder(tasks, ids)
	if err != nil {
		return Change{}, err
	}
	return Change{
		Writes: repository.ChangeSet{PutTasks: r.touch(moved(tasks, ordered))},
		Order:  domain.Positions(ordered),
	}, nil
}

// Reconcile plans resolving collisions and then closing gaps.
func (r *Reconciler) Reconcile(ctx context.Context) (Change, error) {
	tasks, err := r.store.GetAll(ctx)
	if err != nil {
		return Change{}, err
	}
	if err := DetectCollisions(tasks); err != nil {
		r.log.WithError(err).Debug("resolving order collision")
	}

	resolved, _ := ResolveCollisions(tasks)
	all, _ := Normalize(resolved)
	changed := moved(tasks, all)
	if len(changed) == 0 {
		return Change{}, nil
	}
	return Change{
		Writes: repository.ChangeSet{PutTasks: r.touch(changed)},
		Order:  domain.Positions(all),
	}, nil
}

// Commit writes c together with any extra changes in one batch.
func (r *Reconciler) Commit(ctx context.Context, c Change, extra ...repository.ChangeSet) error {
	cs := c.Writes
	for _, e := range extra {
		cs = cs.Merge(e)
	}
	return r.store.Commit(ctx, cs)
}

func (r *Reconciler) touch(tasks []domain.Task) []domain.Task {
	now := r.now().UTC()
	for i := range tasks {
		tasks[i].UpdatedAt = now
	}
	return tasks
}

// moved returns the tasks of after whose position differs from before.
func moved(before, after []domain.Task) []domain.Task {
	was := make(map[string]int64, len(before))
	for _, t := range before {
		was[t.ID] = t.Position
	}
	var out []domain.Task
	for _, t := range after {
		if p, ok := was[t.ID]; !ok || p != t.Position {
			out = append(out, t)
		}
	}
	return out
}
