package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/repository"
)

const (
	taskPrefix     = "task/"
	mutationPrefix = "mutation/"
	metaPrefix     = "meta/"
	sequenceKey    = "sequence"
)

// Repository is the degraded backend. Commit applies its writes one key at a
// time: a failure part-way through leaves the earlier writes in place.
type Repository struct {
	driver Driver
	name   string
	mu     sync.Mutex
}

var _ repository.Backend = (*Repository)(nil)

// New wraps driver. name is reported by Name, e.g. "kv-file".
func New(driver Driver, name string) *Repository {
	return &Repository{driver: driver, name: name}
}

type taskRecord struct {
	ID            string    `json:"id"`
	EncryptedText string    `json:"encryptedText"`
	Completed     bool      `json:"completed"`
	Category      string    `json:"category"`
	Priority      string    `json:"priority"`
	Tags          []string  `json:"tags,omitempty"`
	Position      int64     `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type mutationRecord struct {
	Sequence       int64     `json:"sequence"`
	Kind           string    `json:"kind"`
	Target         string    `json:"target"`
	Payload        string    `json:"payload"`
	IdempotencyKey string    `json:"idempotencyKey"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

func toRecord(t domain.Task) taskRecord {
	return taskRecord{
		ID:            t.ID,
		EncryptedText: string(t.EncryptedText),
		Completed:     t.Completed,
		Category:      t.Category,
		Priority:      string(t.Priority),
		Tags:          t.Tags,
		Position:      t.Position,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (r taskRecord) toTask() domain.Task {
	return domain.Task{
		ID:            r.ID,
		EncryptedText: domain.EncryptedPayload(r.EncryptedText),
		Completed:     r.Completed,
		Category:      r.Category,
		Priority:      domain.Priority(r.Priority),
		Tags:          r.Tags,
		Position:      r.Position,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func mutationKey(seq int64) string {
	return fmt.Sprintf("%s%020d", mutationPrefix, seq)
}

func (r *Repository) Name() string { return r.name }

// Atomic is always false for this backend.
func (r *Repository) Atomic() bool { return false }

func (r *Repository) Close() error { return r.driver.Close() }

func (r *Repository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.driver.Keys(ctx, taskPrefix)
	if err != nil {
		return nil, errors.NewDatabaseError("list task keys", err)
	}
	tasks := make([]domain.Task, 0, len(keys))
	for _, key := range keys {
		task, ok, err := r.readTask(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return tasks, nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok, err := r.readTask(ctx, taskPrefix+id)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, errors.NewNotFoundError("task", id)
	}
	return task, nil
}

func (r *Repository) readTask(ctx context.Context, key string) (domain.Task, bool, error) {
	data, ok, err := r.driver.Get(ctx, key)
	if err != nil {
		return domain.Task{}, false, errors.NewDatabaseError("read "+key, err)
	}
	if !ok {
		return domain.Task{}, false, nil
	}
	var rec taskRecord
	if err := sonic.ConfigStd.Unmarshal(data, &rec); err != nil {
		return domain.Task{}, false, errors.NewDatabaseError("decode "+key, err)
	}
	return rec.toTask(), true, nil
}

func (r *Repository) writeTask(ctx context.Context, t domain.Task) error {
	if t.ID == "" {
		return errors.NewInvalidInputError("id", t.ID, "task id must not be empty")
	}
	data, err := sonic.ConfigStd.Marshal(toRecord(t))
	if err != nil {
		return errors.NewDatabaseError("encode task", err)
	}
	if err := r.driver.Set(ctx, taskPrefix+t.ID, data); err != nil {
		return errors.NewDatabaseError("write task "+t.ID, err)
	}
	return nil
}

// Commit applies cs key by key. It is not atomic: on error, writes made
// before the failing one are kept. Cancellation is only honored before the
// first write; once started the batch runs to the end.
func (r *Repository) Commit(ctx context.Context, cs repository.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()

	if cs.ClearTasks {
		if err := r.deletePrefix(ctx, taskPrefix); err != nil {
			return err
		}
	}
	for _, id := range cs.DeleteTasks {
		if err := r.driver.Delete(ctx, taskPrefix+id); err != nil {
			return errors.NewDatabaseError("delete task "+id, err)
		}
	}
	for _, t := range cs.PutTasks {
		if err := r.writeTask(ctx, t); err != nil {
			return err
		}
	}
	if cs.ClearMutations {
		if err := r.deletePrefix(ctx, mutationPrefix); err != nil {
			return err
		}
	}
	for _, seq := range cs.DeleteMutations {
		if err := r.driver.Delete(ctx, mutationKey(seq)); err != nil {
			return errors.NewDatabaseError("delete mutation", err)
		}
	}
	if len(cs.RetargetMutations) > 0 {
		if err := r.retarget(ctx, cs.RetargetMutations); err != nil {
			return err
		}
	}
	for _, m := range cs.AppendMutations {
		if _, err := r.appendMutation(ctx, m); err != nil {
			return err
		}
	}
	for name, value := range cs.Meta {
		if err := r.driver.Set(ctx, metaPrefix+name, []byte(value)); err != nil {
			return errors.NewDatabaseError("set metadata "+name, err)
		}
	}
	return nil
}

func (r *Repository) deletePrefix(ctx context.Context, prefix string) error {
	keys, err := r.driver.Keys(ctx, prefix)
	if err != nil {
		return errors.NewDatabaseError("list "+prefix, err)
	}
	for _, key := range keys {
		if err := r.driver.Delete(ctx, key); err != nil {
			return errors.NewDatabaseError("delete "+key, err)
		}
	}
	return nil
}

func (r *Repository) retarget(ctx context.Context, ids map[string]string) error {
	mutations, err := r.listMutations(ctx, 0)
	if err != nil {
		return err
	}
	for _, m := range mutations {
		touched := false
		for oldID, newID := range ids {
			if m.References(oldID) {
				m = m.Retarget(oldID, newID)
				touched = true
			}
		}
		if touched {
			if err := r.writeMutation(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repository) AppendMutation(ctx context.Context, m domain.Mutation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendMutation(context.WithoutCancel(ctx), m)
}

func (r *Repository) appendMutation(ctx context.Context, m domain.Mutation) (int64, error) {
	last := int64(0)
	data, ok, err := r.driver.Get(ctx, sequenceKey)
	if err != nil {
		return 0, errors.NewDatabaseError("read sequence", err)
	}
	if ok {
		if last, err = strconv.ParseInt(string(data), 10, 64); err != nil {
			return 0, errors.NewDatabaseError("parse sequence", err)
		}
	}
	m.Sequence = last + 1
	if err := r.driver.Set(ctx, sequenceKey, []byte(strconv.FormatInt(m.Sequence, 10))); err != nil {
		return 0, errors.NewDatabaseError("write sequence", err)
	}
	if err := r.writeMutation(ctx, m); err != nil {
		return 0, err
	}
	return m.Sequence, nil
}

func (r *Repository) writeMutation(ctx context.Context, m domain.Mutation) error {
	payload, err := domain.EncodePayload(m.Payload)
	if err != nil {
		return errors.NewInvalidInputError("payload", m.Kind, err.Error())
	}
	data, err := sonic.ConfigStd.Marshal(mutationRecord{
		Sequence:       m.Sequence,
		Kind:           string(m.Kind),
		Target:         m.Target,
		Payload:        string(payload),
		IdempotencyKey: m.IdempotencyKey,
		EnqueuedAt:     m.EnqueuedAt,
	})
	if err != nil {
		return errors.NewDatabaseError("encode mutation", err)
	}
	if err := r.driver.Set(ctx, mutationKey(m.Sequence), data); err != nil {
		return errors.NewDatabaseError("write mutation", err)
	}
	return nil
}

func (r *Repository) ListMutations(ctx context.Context, limit int) ([]domain.Mutation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listMutations(ctx, limit)
}

func (r *Repository) listMutations(ctx context.Context, limit int) ([]domain.Mutation, error) {
	keys, err := r.driver.Keys(ctx, mutationPrefix)
	if err != nil {
		return nil, errors.NewDatabaseError("list mutation keys", err)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	mutations := make([]domain.Mutation, 0, len(keys))
	for _, key := range keys {
		data, ok, err := r.driver.Get(ctx, key)
		if err != nil {
			return nil, errors.NewDatabaseError("read "+key, err)
		}
		if !ok {
			continue
		}
		var rec mutationRecord
		if err := sonic.ConfigStd.Unmarshal(data, &rec); err != nil {
			return nil, errors.NewDatabaseError("decode "+key, err)
		}
		kind := domain.MutationKind(rec.Kind)
		payload, err := domain.DecodePayload(kind, []byte(rec.Payload))
		if err != nil {
			return nil, errors.NewDatabaseError("decode "+key, err)
		}
		mutations = append(mutations, domain.Mutation{
			Sequence:       rec.Sequence,
			Kind:           kind,
			Target:         rec.Target,
			Payload:        payload,
			IdempotencyKey: rec.IdempotencyKey,
			EnqueuedAt:     rec.EnqueuedAt,
		})
	}
	return mutations, nil
}

func (r *Repository) GetMeta(ctx context.Context, name string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, ok, err := r.driver.Get(ctx, metaPrefix+name)
	if err != nil {
		return "", false, errors.NewDatabaseError("get metadata", err)
	}
	return string(data), ok, nil
}
