package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/repository"
)

func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testTask(id string, position int64) domain.Task {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(position) * time.Minute)
	return domain.Task{
		ID:            id,
		EncryptedText: domain.EncryptedPayload("ZW5jcnlwdGVk-" + id),
		Category:      "home",
		Priority:      domain.PriorityMedium,
		Tags:          []string{"t"},
		Position:      position,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestNew_InMemory(t *testing.T) {
	repo, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer repo.Close()

	assert.Equal(t, BackendName, repo.Name())
	assert.True(t, repo.Atomic())

	require.NoError(t, repo.Commit(context.Background(), repository.ChangeSet{PutTasks: []domain.Task{testTask("a", 0)}}))
	tasks, err := repo.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestNew_UnwritableLocation(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "tasks.db"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeDatabase))
}

func TestPutAndGetTask(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	task := testTask("srv-1", 0)
	task.Completed = true

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{task}}))

	got, err := repo.GetTask(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.EncryptedText, got.EncryptedText)
	assert.True(t, got.Completed)
	assert.Equal(t, []string{"t"}, got.Tags)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
}

func TestPutTask_Upserts(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	task := testTask("srv-1", 0)
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{task}}))

	task.Position = 5
	task.Tags = nil
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{task}}))

	got, err := repo.GetTask(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Position)
	assert.Nil(t, got.Tags)
}

func TestGetTask_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetTask(context.Background(), "nope")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
}

func TestListTasks_Order(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	later := testTask("b", 1)
	later.CreatedAt = later.CreatedAt.Add(time.Hour)
	earlier := testTask("c", 1)
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{
		testTask("d", 2), later, earlier, testTask("a", 0),
	}}))

	tasks, err := repo.ListTasks(ctx)
	require.NoError(t, err)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids)
}

func TestCommit_IsAtomic(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{testTask("a", 0)}}))

	moved := testTask("a", 9)
	invalid := testTask("", 1) // violates CHECK (id <> '')
	err := repo.Commit(ctx, repository.ChangeSet{
		PutTasks: []domain.Task{moved, testTask("b", 1), invalid},
		Meta:     map[string]string{"last-sync-timestamp": "x"},
	})
	require.Error(t, err)

	tasks, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(0), tasks[0].Position, "the earlier write in the batch must be rolled back")

	_, ok, err := repo.GetMeta(ctx, "last-sync-timestamp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommit_AppendMutationsWithTasks(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	err := repo.Commit(ctx, repository.ChangeSet{
		PutTasks: []domain.Task{testTask("tmp-1", 0)},
		AppendMutations: []domain.Mutation{{
			Kind:           domain.MutationCreate,
			Target:         "tmp-1",
			Payload:        domain.CreatePayload{Position: 0},
			IdempotencyKey: "k-1",
			EnqueuedAt:     time.Now(),
		}},
	})
	require.NoError(t, err)

	queued, err := repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "tmp-1", queued[0].Target)
	assert.NotZero(t, queued[0].Sequence)

	// An unknown kind violates the table CHECK and must undo the task write too.
	err = repo.Commit(ctx, repository.ChangeSet{
		PutTasks: []domain.Task{testTask("tmp-2", 1)},
		AppendMutations: []domain.Mutation{{
			Kind:       domain.MutationKind("archive"),
			Target:     "tmp-2",
			Payload:    domain.DeletePayload{},
			EnqueuedAt: time.Now(),
		}},
	})
	require.Error(t, err)

	_, err = repo.GetTask(ctx, "tmp-2")
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeNotFound))
	queued, err = repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestCommit_DeleteAndClear(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{
		testTask("a", 0), testTask("b", 1), testTask("c", 2),
	}}))

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{DeleteTasks: []string{"b", "unknown"}}))
	tasks, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{ClearTasks: true}))
	tasks, err = repo.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestMutations_FIFO(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var seqs []int64
	for _, target := range []string{"a", "b", "c"} {
		seq, err := repo.AppendMutation(ctx, domain.Mutation{
			Kind:           domain.MutationDelete,
			Target:         target,
			Payload:        domain.DeletePayload{},
			IdempotencyKey: "k-" + target,
			EnqueuedAt:     time.Now(),
		})
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	assert.True(t, seqs[0] < seqs[1] && seqs[1] < seqs[2])

	all, err := repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Target)
	assert.Equal(t, "k-c", all[2].IdempotencyKey)

	head, err := repo.ListMutations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.Equal(t, seqs[0], head[0].Sequence)

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{DeleteMutations: []int64{seqs[0]}}))
	seq, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationDelete, Target: "d", Payload: domain.DeletePayload{}})
	require.NoError(t, err)
	assert.Greater(t, seq, seqs[2], "sequences are never reused")

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{ClearMutations: true}))
	all, err = repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommit_RetargetMutations(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	createSeq, err := repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationCreate, Target: "tmp-1", Payload: domain.CreatePayload{Position: 1}})
	require.NoError(t, err)
	done := true
	_, err = repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationUpdate, Target: "tmp-1", Payload: domain.UpdatePayload{Completed: &done}})
	require.NoError(t, err)
	_, err = repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationReorder, Payload: domain.ReorderPayload{Order: []domain.PositionUpdate{
		{ID: "srv-0", Position: 1}, {ID: "tmp-1", Position: 0},
	}}})
	require.NoError(t, err)

	rekeyed := testTask("srv-1", 1)
	err = repo.Commit(ctx, repository.ChangeSet{
		DeleteTasks:       []string{"tmp-1"},
		PutTasks:          []domain.Task{rekeyed},
		DeleteMutations:   []int64{createSeq},
		RetargetMutations: map[string]string{"tmp-1": "srv-1"},
	})
	require.NoError(t, err)

	queued, err := repo.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "srv-1", queued[0].Target)
	assert.Equal(t, domain.ReorderPayload{Order: []domain.PositionUpdate{
		{ID: "srv-0", Position: 1}, {ID: "srv-1", Position: 0},
	}}, queued[1].Payload)
}

func TestMeta(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, ok, err := repo.GetMeta(ctx, "encryption-salt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{Meta: map[string]string{"encryption-salt": "c2FsdA=="}}))
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{Meta: map[string]string{"encryption-salt": "bmV3"}}))

	value, ok, err := repo.GetMeta(ctx, "encryption-salt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bmV3", value)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	ctx := context.Background()

	repo, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{testTask("a", 0)}}))
	_, err = repo.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationDelete, Target: "x", Payload: domain.DeletePayload{}})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	tasks, err := reopened.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	queued, err := reopened.ListMutations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestCommit_CanceledContext(t *testing.T) {
	repo := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Commit(ctx, repository.ChangeSet{PutTasks: []domain.Task{testTask("a", 0)}})
	require.Error(t, err)

	tasks, err := repo.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
