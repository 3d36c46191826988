package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

func testTask(id string, position int64) domain.Task {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(position) * time.Second)
	return domain.Task{
		ID:            id,
		EncryptedText: domain.EncryptedPayload("ZW5j-" + id),
		Category:      "general",
		Priority:      domain.PriorityMedium,
		Position:      position,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

// blockedPath returns a database path whose parent is a regular file, so the
// primary backend cannot open it.
func blockedPath(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	return filepath.Join(file, "tasks.db")
}

func openPrimary(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "db", "tasks.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openDegraded(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{ForceDegraded: true, FallbackDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Primary(t *testing.T) {
	s := openPrimary(t)

	assert.Equal(t, "sqlite", s.Backend())
	assert.False(t, s.Degraded())
	assert.True(t, s.Atomic())
}

func TestOpen_FallsBackAndLogsOnce(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	s, err := Open(context.Background(), Config{
		Path:        blockedPath(t),
		FallbackDir: t.TempDir(),
		Logger:      logger,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Degraded())
	assert.False(t, s.Atomic())
	assert.Equal(t, "kv-file", s.Backend())

	var warnings []*log.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings = append(warnings, e)
		}
	}
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "falling back")
	assert.Equal(t, "store", warnings[0].Data["component"])

	// Using the store does not re-select or re-log.
	hook.Reset()
	require.NoError(t, s.Put(context.Background(), testTask("a", 0)))
	_, err = s.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hook.AllEntries())
}

func TestOpen_DegradedRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := Open(context.Background(), Config{ForceDegraded: true, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "kv-redis", s.Backend())
	require.NoError(t, s.Put(context.Background(), testTask("a", 0)))
	assert.True(t, mr.Exists("tasks:task/a"))
}

func TestOpen_NothingAvailable(t *testing.T) {
	_, err := Open(context.Background(), Config{Path: blockedPath(t), FallbackDir: blockedPath(t)})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeStorageUnavailable))
}

func TestStore_Operations(t *testing.T) {
	stores := map[string]*Store{"primary": openPrimary(t), "degraded": openDegraded(t)}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, testTask("a", 0)))
			require.NoError(t, s.PutMany(ctx, []domain.Task{testTask("b", 1), testTask("c", 2)}))

			got, ok, err := s.Get(ctx, "b")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(1), got.Position)

			require.NoError(t, s.Delete(ctx, "b"))
			require.NoError(t, s.Delete(ctx, "b"))
			all, err := s.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "c", all[1].ID)

			require.NoError(t, s.Clear(ctx))
			all, err = s.GetAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			require.NoError(t, s.SetMeta(ctx, "last-sync-timestamp", "2024-05-01T08:00:00Z"))
			value, ok, err := s.GetMeta(ctx, "last-sync-timestamp")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2024-05-01T08:00:00Z", value)

			seq, err := s.AppendMutation(ctx, domain.Mutation{Kind: domain.MutationDelete, Target: "a", Payload: domain.DeletePayload{}})
			require.NoError(t, err)
			queued, err := s.Mutations(ctx, 0)
			require.NoError(t, err)
			require.Len(t, queued, 1)
			assert.Equal(t, seq, queued[0].Sequence)
		})
	}
}

// A batch containing an invalid task: the primary store rolls the whole batch
// back, the degraded store keeps the writes that preceded the failure.
func TestStore_PutManyAtomicity(t *testing.T) {
	batch := []domain.Task{testTask("a", 0), testTask("b", 1), testTask("", 2)}

	t.Run("primary is all-or-nothing", func(t *testing.T) {
		s := openPrimary(t)
		require.Error(t, s.PutMany(context.Background(), batch))

		all, err := s.GetAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("degraded applies a prefix", func(t *testing.T) {
		s := openDegraded(t)
		require.Error(t, s.PutMany(context.Background(), batch))

		all, err := s.GetAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStore_NeverPersistsPlaintext(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{ForceDegraded: true, FallbackDir: dir})
	require.NoError(t, err)
	defer s.Close()

	task := testTask("a", 0)
	require.NoError(t, s.Put(context.Background(), task))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"text"`)
		assert.NotContains(t, string(data), `"plaintext"`)
	}
}
