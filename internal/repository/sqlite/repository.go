package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/repository"
	"task-sync/internal/repository/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// BackendName identifies this backend in logs and status output.
const BackendName = "sqlite"

// SQLiteRepository is the transactional storage backend. Every Commit runs in
// one transaction.
type SQLiteRepository struct {
	db *sql.DB
}

var _ repository.Backend = (*SQLiteRepository)(nil)

// New opens (creating if needed) the database at dbPath and applies migrations.
// ":memory:" yields a private in-memory database.
func New(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, errors.NewDatabaseError("open database", err)
	}
	// One connection serializes writers and keeps ":memory:" databases
	// visible to every query.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("open database", err)
	}
	if err := migrations.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("run migrations", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Name implements repository.Backend
func (r *SQLiteRepository) Name() string { return BackendName }

// Atomic implements repository.Backend
func (r *SQLiteRepository) Atomic() bool { return true }

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ListTasks retrieves all tasks in display order
func (r *SQLiteRepository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	ORDER BY position ASC, created_at ASC, id ASC`

	rows, err := QueryMultiple(ctx, r.db, query, ScanTasks, "tasks")
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, len(rows))
	for i, t := range rows {
		tasks[i] = *t
	}
	return tasks, nil
}

// GetTask retrieves a task by ID
func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE id = ?`

	task, err := QuerySingle(ctx, r.db, query, ScanTask, "task", id, id)
	if err != nil {
		return domain.Task{}, err
	}
	return *task, nil
}

// Commit applies cs in a single transaction. Any failure rolls back every part.
func (r *SQLiteRepository) Commit(ctx context.Context, cs repository.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}
	return WithTx(ctx, r.db, "commit change set", func(tx *sql.Tx) error {
		if cs.ClearTasks {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
				return HandleDatabaseError("clear tasks", err)
			}
		}
		for _, id := range cs.DeleteTasks {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
				return HandleDatabaseError("delete task", err)
			}
		}
		for _, task := range cs.PutTasks {
			if err := upsertTask(ctx, tx, task); err != nil {
				return err
			}
		}
		if cs.ClearMutations {
			if _, err := tx.ExecContext(ctx, `DELETE FROM mutation_queue`); err != nil {
				return HandleDatabaseError("clear mutation queue", err)
			}
		}
		for _, seq := range cs.DeleteMutations {
			if _, err := tx.ExecContext(ctx, `DELETE FROM mutation_queue WHERE sequence = ?`, seq); err != nil {
				return HandleDatabaseError("delete mutation", err)
			}
		}
		if len(cs.RetargetMutations) > 0 {
			if err := retargetMutations(ctx, tx, cs.RetargetMutations); err != nil {
				return err
			}
		}
		for _, m := range cs.AppendMutations {
			if _, err := insertMutation(ctx, tx, m); err != nil {
				return err
			}
		}
		for name, value := range cs.Meta {
			query := `
			INSERT INTO metadata (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`
			if _, err := tx.ExecContext(ctx, query, name, value); err != nil {
				return HandleDatabaseError("set metadata", err)
			}
		}
		return nil
	})
}

func upsertTask(ctx context.Context, q Querier, task domain.Task) error {
	tags, err := FormatTagsForDB(task.Tags)
	if err != nil {
		return errors.NewInvalidInputError("tags", task.Tags, err.Error())
	}
	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		encrypted_text = excluded.encrypted_text,
		completed = excluded.completed,
		category = excluded.category,
		priority = excluded.priority,
		tags = excluded.tags,
		position = excluded.position,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`

	_, err = q.ExecContext(ctx, query,
		task.ID,
		string(task.EncryptedText),
		task.Completed,
		task.Category,
		string(task.Priority),
		tags,
		task.Position,
		FormatTimeForDB(task.CreatedAt),
		FormatTimeForDB(task.UpdatedAt),
	)
	if err != nil {
		return HandleDatabaseError("put task "+task.ID, err)
	}
	return nil
}

func retargetMutations(ctx context.Context, tx *sql.Tx, ids map[string]string) error {
	query := `SELECT ` + mutationColumns + ` FROM mutation_queue ORDER BY sequence ASC`
	queued, err := QueryMultiple(ctx, tx, query, ScanMutations, "mutations")
	if err != nil {
		return err
	}

	for _, m := range queued {
		updated := *m
		for oldID, newID := range ids {
			updated = updated.Retarget(oldID, newID)
		}
		if updated.Target == m.Target && updated.Kind != domain.MutationReorder {
			continue
		}
		payload, err := domain.EncodePayload(updated.Payload)
		if err != nil {
			return errors.NewInvalidInputError("payload", updated.Kind, err.Error())
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE mutation_queue SET target = ?, payload = ? WHERE sequence = ?`,
			updated.Target, string(payload), updated.Sequence)
		if err != nil {
			return HandleDatabaseError("retarget mutation", err)
		}
	}
	return nil
}

// AppendMutation stores m and returns its sequence number
func (r *SQLiteRepository) AppendMutation(ctx context.Context, m domain.Mutation) (int64, error) {
	return insertMutation(ctx, r.db, m)
}

func insertMutation(ctx context.Context, q Querier, m domain.Mutation) (int64, error) {
	payload, err := domain.EncodePayload(m.Payload)
	if err != nil {
		return 0, errors.NewInvalidInputError("payload", m.Kind, err.Error())
	}
	query := `
	INSERT INTO mutation_queue (kind, target, payload, idempotency_key, enqueued_at)
	VALUES (?, ?, ?, ?, ?)`

	return ExecuteWithLastInsertID(ctx, q, query,
		string(m.Kind), m.Target, string(payload), m.IdempotencyKey, FormatTimeForDB(m.EnqueuedAt))
}

// ListMutations returns queued mutations in FIFO order
func (r *SQLiteRepository) ListMutations(ctx context.Context, limit int) ([]domain.Mutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutation_queue ORDER BY sequence ASC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := QueryMultiple(ctx, r.db, query, ScanMutations, "mutations", args...)
	if err != nil {
		return nil, err
	}
	mutations := make([]domain.Mutation, len(rows))
	for i, m := range rows {
		mutations[i] = *m
	}
	return mutations, nil
}

// GetMeta reads a metadata value
func (r *SQLiteRepository) GetMeta(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, HandleDatabaseError("get metadata", err)
	}
	return value, true, nil
}
