package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-sync/internal/domain"
	apperrors "task-sync/internal/errors"
	"task-sync/internal/repository"
)

func testTask(id string, position int64) domain.Task {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(position) * time.Minute)
	return domain.Task{
		ID:            id,
		EncryptedText: domain.EncryptedPayload("ZW5j-" + id),
		Category:      "work",
		Priority:      domain.PriorityLow,
		Position:      position,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func repositories(t *testing.T) map[string]*Repository {
	t.Helper()
	out := make(map[string]*Repository)
	for name, driver := range drivers(t) {
		out[name] = New(driver, "kv-"+name)
	}
	return out
}

func TestRepository_Tasks(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.False(t, repo.Atomic())
			assert.Equal(t, "kv-"+name, repo.Name())

			later := testTask("b", 1)
			later.CreatedAt = later.CreatedAt.Add(time.Hour)
			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{
				testTask("d", 2), later, testTask("c", 1), testTask("a", 0),
			}}))

			tasks, err := repo.ListTasks(ctx)
			require.NoError(t, err)
			var ids []string
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, []string{"a", "c", "b", "d"}, ids)

			got, err := repo.GetTask(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, domain.EncryptedPayload("ZW5j-c"), got.EncryptedText)
			assert.True(t, got.CreatedAt.Equal(testTask("c", 1).CreatedAt))

			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{DeleteTasks: []string{"c"}}))
			_, err = repo.GetTask(ctx, "c")
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{ClearTasks: true}))
			tasks, err = repo.ListTasks(ctx)
			require.NoError(t, err)
			assert.Empty(t, tasks)
		})
	}
}

func TestRepository_Mutations(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationCreate, Target: "tmp-1", Payload: domain.CreatePayload{Position: 0}})
			require.NoError(t, err)
			second, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationReorder, Payload: domain.ReorderPayload{Order: []domain.PositionUpdate{{ID: "tmp-1", Position: 0}}}})
			require.NoError(t, err)
			assert.Equal(t, first+1, second)

			head, err := repo.ListMutations(ctx, 1)
			require.NoError(t, err)
			require.Len(t, head, 1)
			assert.Equal(t, first, head[0].Sequence)

			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{
				DeleteMutations:   []int64{first},
				RetargetMutations: map[string]string{"tmp-1": "srv-1"},
			}))

			queued, err := repo.ListMutations(ctx, 0)
			require.NoError(t, err)
			require.Len(t, queued, 1)
			assert.Equal(t, domain.ReorderPayload{Order: []domain.PositionUpdate{{ID: "srv-1", Position: 0}}}, queued[0].Payload)

			third, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationDelete, Target: "srv-1", Payload: domain.DeletePayload{}})
			require.NoError(t, err)
			assert.Greater(t, third, second)

			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{ClearMutations: true}))
			queued, err = repo.ListMutations(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, queued)
		})
	}
}

func TestRepository_SequenceOrderBeyondNineEntries(t *testing.T) {
	file, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	repo := New(file, "kv-file")
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationDelete, Target: "t", Payload: domain.DeletePayload{}})
		require.NoError(t, err)
	}

	queued, err := repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	for i := 1; i < len(queued); i++ {
		assert.Less(t, queued[i-1].Sequence, queued[i].Sequence)
	}
}

func TestRepository_Meta(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := repo.GetMeta(ctx, "encryption-salt")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, repo.Commit(ctx, repository.ChangeSet{Meta: map[string]string{"encryption-salt": "c2FsdA=="}}))
			value, ok, err := repo.GetMeta(ctx, "encryption-salt")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "c2FsdA==", value)
		})
	}
}

func TestRepository_RejectsEmptyID(t *testing.T) {
	file, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	repo := New(file, "kv-file")

	err = repo.Commit(context.Background(), repository.ChangeSet{PutTasks: []domain.Task{testTask("", 0)}})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeInvalidInput))
}

// faultyDriver fails every Set after the first failAfter successful ones.
type faultyDriver struct {
	Driver
	failAfter int
	sets      int
}

func (f *faultyDriver) Set(ctx context.Context, key string, value []byte) error {
	if f.sets >= f.failAfter {
		return errors.New("quota exceeded")
	}
	f.sets++
	return f.Driver.Set(ctx, key, value)
}

func TestRepository_CommitIsNotAtomic(t *testing.T) {
	file, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	faulty := &faultyDriver{Driver: file, failAfter: 2}
	repo := New(faulty, "kv-file")
	ctx := context.Background()

	err = repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{
		testTask("a", 0), testTask("b", 1), testTask("c", 2),
	}})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeDatabase))

	tasks, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "writes before the failure stay applied in degraded mode")
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}

// cancelingDriver cancels the batch context on its first Delete.
type cancelingDriver struct {
	Driver
	cancel context.CancelFunc
}

func (c *cancelingDriver) Delete(ctx context.Context, key string) error {
	c.cancel()
	return c.Driver.Delete(ctx, key)
}

func TestRepository_CommitFinishesOnceStarted(t *testing.T) {
	file, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := New(&cancelingDriver{Driver: file, cancel: cancel}, "kv-file")
	bg := context.Background()

	require.NoError(t, repo.Commit(bg, repository.ChangeSet{PutTasks: []domain.Task{
		testTask("a", 0), testTask("b", 1),
	}}))

	moved := testTask("b", 0)
	del := domain.Mutation{Kind: domain.MutationDelete, Target: "a", Payload: domain.DeletePayload{}}
	err = repo.Commit(ctx, repository.ChangeSet{
		DeleteTasks:     []string{"a"},
		PutTasks:        []domain.Task{moved},
		AppendMutations: []domain.Mutation{del},
	})
	require.NoError(t, err)
	assert.Error(t, ctx.Err())

	tasks, err := repo.ListTasks(bg)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID)
	assert.Equal(t, int64(0), tasks[0].Position)

	mutations, err := repo.ListMutations(bg, 0)
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "a", mutations[0].Target)
}

func TestRepository_CommitCanceledBeforeStart(t *testing.T) {
	file, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)
	repo := New(file, "kv-file")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{testTask("a", 0)}})
	assert.ErrorIs(t, err, context.Canceled)

	tasks, err := repo.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
