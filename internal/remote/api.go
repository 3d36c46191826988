// Package remote is the boundary to the task server: the API the sync loop
// consumes, an HTTP client for it, and an in-memory server implementing the
// same semantics for tests and local development.
package remote

import (
	"context"
	"time"

	"task-sync/internal/domain"
)

// IdempotencyKeyHeader carries the queue entry's key so a replayed request
// is applied at most once.
const IdempotencyKeyHeader = "Idempotency-Key"

// Task is the wire form of a task.
type Task struct {
	ID            string    `json:"id"`
	EncryptedText string    `json:"encryptedText"`
	Completed     bool      `json:"completed"`
	Category      string    `json:"category"`
	Priority      string    `json:"priority"`
	Tags          []string  `json:"tags"`
	Position      int64     `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FromDomain converts a local task to its wire form.
func FromDomain(t domain.Task) Task {
	return Task{
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

// ToDomain converts a wire task to the local model.
func (t Task) ToDomain() domain.Task {
	return domain.Task{
		ID:            t.ID,
		EncryptedText: domain.EncryptedPayload(t.EncryptedText),
		Completed:     t.Completed,
		Category:      t.Category,
		Priority:      domain.Priority(t.Priority),
		Tags:          t.Tags,
		Position:      t.Position,
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     t.UpdatedAt.UTC(),
	}
}

// CreateRequest is the body of POST /tasks. Position is the client's
// provisional position; the server may move it.
type CreateRequest struct {
	EncryptedText string   `json:"encryptedText"`
	Completed     bool     `json:"completed"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Tags          []string `json:"tags"`
	Position      int64    `json:"position"`
}

// UpdateRequest is the body of PUT /tasks/:id. Nil fields are left unchanged.
type UpdateRequest struct {
	EncryptedText *string   `json:"encryptedText,omitempty"`
	Completed     *bool     `json:"completed,omitempty"`
	Category      *string   `json:"category,omitempty"`
	Priority      *string   `json:"priority,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (r UpdateRequest) IsEmpty() bool {
	return r.EncryptedText == nil && r.Completed == nil && r.Category == nil &&
		r.Priority == nil && r.Tags == nil
}

// API is the server contract.
//
// Errors are *errors.AppError values: ErrorTypeAuth for 401/403,
// ErrorTypeConflict when the target is gone, ErrorTypeRemoteUnavailable or
// ErrorTypeTimeout for conditions worth retrying, ErrorTypeValidation for
// any other rejection.
type API interface {
	// List returns every task ordered by position.
	List(ctx context.Context) ([]Task, error)
	// Create returns the task with its server id and authoritative position.
	Create(ctx context.Context, req CreateRequest, idempotencyKey string) (Task, error)
	Update(ctx context.Context, id string, req UpdateRequest, idempotencyKey string) (Task, error)
	Delete(ctx context.Context, id string, idempotencyKey string) error
	// Reorder applies order atomically and returns the full renormalized list.
	Reorder(ctx context.Context, order []domain.PositionUpdate, idempotencyKey string) ([]Task, error)
}

// TokenSource supplies the bearer credential for each request. Issuing and
// refreshing it is the credential layer's job.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
