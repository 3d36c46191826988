// Package repository defines the storage backend contract shared by the
// transactional SQLite backend and the degraded key/value backend.
package repository

import (
	"context"

	"task-sync/internal/domain"
)

// Backend is the capability interface every local storage implementation
// satisfies. Atomic reports whether Commit is all-or-nothing; callers that
// need batch atomicity must check it rather than discover it by failure.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Atomic reports whether a Commit is applied as a single transaction.
	Atomic() bool

	// ListTasks returns every task ordered by position, createdAt, then id.
	ListTasks(ctx context.Context) ([]domain.Task, error)
	// GetTask returns a not-found error when id is unknown.
	GetTask(ctx context.Context, id string) (domain.Task, error)

	// Commit applies a change set. See ChangeSet for the application order.
	Commit(ctx context.Context, cs ChangeSet) error

	// AppendMutation stores m with the next sequence number and returns it.
	AppendMutation(ctx context.Context, m domain.Mutation) (int64, error)
	// ListMutations returns queued mutations by ascending sequence. A limit
	// of zero or less returns all of them.
	ListMutations(ctx context.Context, limit int) ([]domain.Mutation, error)

	// GetMeta returns the metadata value for name and whether it exists.
	GetMeta(ctx context.Context, name string) (string, bool, error)

	Close() error
}

// ChangeSet is a batch of local writes. Backends apply the parts in this
// order: ClearTasks, DeleteTasks, PutTasks, ClearMutations, DeleteMutations,
// RetargetMutations, AppendMutations, Meta.
type ChangeSet struct {
	ClearTasks  bool
	DeleteTasks []string
	PutTasks    []domain.Task

	ClearMutations  bool
	DeleteMutations []int64
	// RetargetMutations maps a temporary id to its server id. Every queued
	// mutation referencing the old id is rewritten.
	RetargetMutations map[string]string
	// AppendMutations are queued after every other mutation change, in
	// slice order. Their Sequence fields are ignored and assigned on write.
	AppendMutations []domain.Mutation

	Meta map[string]string
}

// IsEmpty reports whether applying cs would change nothing.
func (cs ChangeSet) IsEmpty() bool {
	return !cs.ClearTasks && len(cs.DeleteTasks) == 0 && len(cs.PutTasks) == 0 &&
		!cs.ClearMutations && len(cs.DeleteMutations) == 0 && len(cs.RetargetMutations) == 0 &&
		len(cs.AppendMutations) == 0 && len(cs.Meta) == 0
}

// Merge appends other's changes to cs. Boolean clears are OR-ed.
func (cs ChangeSet) Merge(other ChangeSet) ChangeSet {
	cs.ClearTasks = cs.ClearTasks || other.ClearTasks
	cs.DeleteTasks = append(cs.DeleteTasks, other.DeleteTasks...)
	cs.PutTasks = append(cs.PutTasks, other.PutTasks...)
	cs.ClearMutations = cs.ClearMutations || other.ClearMutations
	cs.DeleteMutations = append(cs.DeleteMutations, other.DeleteMutations...)
	cs.AppendMutations = append(cs.AppendMutations, other.AppendMutations...)
	if len(other.RetargetMutations) > 0 {
		merged := make(map[string]string, len(cs.RetargetMutations)+len(other.RetargetMutations))
		for k, v := range cs.RetargetMutations {
			merged[k] = v
		}
		for k, v := range other.RetargetMutations {
			merged[k] = v
		}
		cs.RetargetMutations = merged
	}
	if len(other.Meta) > 0 {
		merged := make(map[string]string, len(cs.Meta)+len(other.Meta))
		for k, v := range cs.Meta {
			merged[k] = v
		}
		for k, v := range other.Meta {
			merged[k] = v
		}
		cs.Meta = merged
	}
	return cs
}
