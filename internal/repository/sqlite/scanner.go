package sqlite

import (
	"task-sync/internal/domain"
)

// Scanner interface defines the common scanning behavior for both sql.Row and sql.Rows
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows interface defines the common behavior for sql.Rows
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

const taskColumns = `id, encrypted_text, completed, category, priority, tags, position, created_at, updated_at`

const mutationColumns = `sequence, kind, target, payload, idempotency_key, enqueued_at`

// ScanTask scans a single task row selected with taskColumns
func ScanTask(scanner Scanner) (*domain.Task, error) {
	var (
		task                 domain.Task
		encrypted, priority  string
		tags                 string
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&task.ID,
		&encrypted,
		&task.Completed,
		&task.Category,
		&priority,
		&tags,
		&task.Position,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.EncryptedText = domain.EncryptedPayload(encrypted)
	task.Priority = domain.Priority(priority)
	if task.Tags, err = ParseTagsFromDB(tags); err != nil {
		return nil, err
	}
	if task.CreatedAt, err = ParseTimeFromDB(createdAt); err != nil {
		return nil, err
	}
	if task.UpdatedAt, err = ParseTimeFromDB(updatedAt); err != nil {
		return nil, err
	}
	return &task, nil
}

// ScanTasks scans multiple task rows
func ScanTasks(rows Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := ScanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

// ScanMutation scans a single mutation_queue row selected with mutationColumns
func ScanMutation(scanner Scanner) (*domain.Mutation, error) {
	var (
		m          domain.Mutation
		kind       string
		payload    string
		enqueuedAt string
	)
	if err := scanner.Scan(&m.Sequence, &kind, &m.Target, &payload, &m.IdempotencyKey, &enqueuedAt); err != nil {
		return nil, err
	}

	m.Kind = domain.MutationKind(kind)
	p, err := domain.DecodePayload(m.Kind, []byte(payload))
	if err != nil {
		return nil, err
	}
	m.Payload = p
	if m.EnqueuedAt, err = ParseTimeFromDB(enqueuedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ScanMutations scans multiple mutation rows
func ScanMutations(rows Rows) ([]*domain.Mutation, error) {
	var mutations []*domain.Mutation
	for rows.Next() {
		m, err := ScanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return mutations, nil
}
