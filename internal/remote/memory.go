package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
	"task-sync/internal/ordering"
)

// MemoryServer is an in-memory implementation of the server semantics:
// the server decides final positions on create, applies reorders
// atomically, and answers a repeated idempotency key with the first result.
type MemoryServer struct {
	mu         sync.Mutex
	tasks      map[string]domain.Task
	seq        int
	now        func() time.Time
	last       time.Time
	available  bool
	authorized bool
	token      string
	replies    map[string]reply
	calls      map[string]int
}

type reply struct {
	task  Task
	tasks []Task
}

var _ API = (*MemoryServer)(nil)

// MemoryOption configures a MemoryServer.
type MemoryOption func(*MemoryServer)

// WithServerClock sets the timestamp source. Timestamps handed out are
// still strictly increasing.
func WithServerClock(now func() time.Time) MemoryOption {
	return func(s *MemoryServer) { s.now = now }
}

// WithBearerToken makes the HTTP handler require this bearer token.
func WithBearerToken(token string) MemoryOption {
	return func(s *MemoryServer) { s.token = token }
}

// NewMemoryServer returns an empty, available server.
func NewMemoryServer(opts ...MemoryOption) *MemoryServer {
	s := &MemoryServer{
		tasks:      make(map[string]domain.Task),
		now:        time.Now,
		available:  true,
		authorized: true,
		replies:    make(map[string]reply),
		calls:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable toggles whether calls succeed. An unavailable server answers
// every call with a retryable error.
func (s *MemoryServer) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = available
}

// SetAuthorized toggles whether calls are accepted. An unauthorized server
// answers every call with an auth error.
func (s *MemoryServer) SetAuthorized(authorized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized = authorized
}

// Calls returns how many times operation ("list", "create", "update",
// "delete", "reorder") was attempted.
func (s *MemoryServer) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Seed stores tasks as-is, bypassing position and id assignment.
func (s *MemoryServer) Seed(tasks ...domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
		if t.UpdatedAt.After(s.last) {
			s.last = t.UpdatedAt
		}
	}
}

// Snapshot returns the stored tasks in order, ignoring availability.
func (s *MemoryServer) Snapshot() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *MemoryServer) sorted() []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	ordering.Sort(out)
	return out
}

func (s *MemoryServer) wire() []Task {
	tasks := s.sorted()
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = FromDomain(t)
	}
	return out
}

// stamp returns a strictly increasing timestamp.
func (s *MemoryServer) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

// begin records the call and checks availability. It must be called with
// s.mu held.
func (s *MemoryServer) begin(ctx context.Context, operation string) error {
	s.calls[operation]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.available {
		return errors.NewRemoteUnavailableError(operation, 503, nil)
	}
	if !s.authorized {
		return errors.NewAuthError(operation, 401)
	}
	return nil
}

// List implements API
func (s *MemoryServer) List(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "list"); err != nil {
		return nil, err
	}
	return s.wire(), nil
}

// Create implements API. The new task keeps the requested position when it
// is free; otherwise it moves down to the first free position, since it is
// always the most recently created task.
func (s *MemoryServer) Create(ctx context.Context, req CreateRequest, idempotencyKey string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "create"); err != nil {
		return Task{}, err
	}
	if r, ok := s.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return r.task, nil
	}
	if req.EncryptedText == "" {
		return Task{}, errors.NewValidationError("encryptedText is required", nil)
	}
	priority := domain.Priority(req.Priority)
	if req.Priority == "" {
		priority = domain.PriorityMedium
	} else if !priority.IsValid() {
		return Task{}, errors.NewValidationError(fmt.Sprintf("unknown priority %q", req.Priority), nil)
	}
	category := req.Category
	if category == "" {
		category = domain.DefaultCategory
	}

	s.seq++
	now := s.stamp()
	task := domain.Task{
		ID:            fmt.Sprintf("srv-%d", s.seq),
		EncryptedText: domain.EncryptedPayload(req.EncryptedText),
		Completed:     req.Completed,
		Category:      category,
		Priority:      priority,
		Tags:          append([]string(nil), req.Tags...),
		Position:      max(req.Position, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.tasks[task.ID] = task
	s.settle(nil)

	out := FromDomain(s.tasks[task.ID])
	s.remember(idempotencyKey, reply{task: out})
	return out, nil
}

// Update implements API
func (s *MemoryServer) Update(ctx context.Context, id string, req UpdateRequest, idempotencyKey string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "update"); err != nil {
		return Task{}, err
	}
	if r, ok := s.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return r.task, nil
	}
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, errors.NewConflictError("task", id)
	}
	if req.Priority != nil && !domain.Priority(*req.Priority).IsValid() {
		return Task{}, errors.NewValidationError(fmt.Sprintf("unknown priority %q", *req.Priority), nil)
	}

	if req.EncryptedText != nil {
		task.EncryptedText = domain.EncryptedPayload(*req.EncryptedText)
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	if req.Category != nil {
		task.Category = *req.Category
	}
	if req.Priority != nil {
		task.Priority = domain.Priority(*req.Priority)
	}
	if req.Tags != nil {
		task.Tags = append([]string(nil), (*req.Tags)...)
	}
	task.UpdatedAt = s.stamp()
	s.tasks[id] = task

	out := FromDomain(task)
	s.remember(idempotencyKey, reply{task: out})
	return out, nil
}

// Delete implements API. Remaining positions are left as they are; clients
// follow a delete with a reorder.
func (s *MemoryServer) Delete(ctx context.Context, id string, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "delete"); err != nil {
		return err
	}
	if _, ok := s.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return nil
	}
	if _, ok := s.tasks[id]; !ok {
		return errors.NewConflictError("task", id)
	}
	delete(s.tasks, id)
	s.remember(idempotencyKey, reply{})
	return nil
}

// Reorder implements API. Ids the server does not know are skipped. After
// applying the order, collisions with unlisted tasks are resolved and the
// list is renumbered to 0..n-1.
func (s *MemoryServer) Reorder(ctx context.Context, order []domain.PositionUpdate, idempotencyKey string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "reorder"); err != nil {
		return nil, err
	}
	if r, ok := s.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return r.tasks, nil
	}

	moved := make(map[string]bool)
	for _, u := range order {
		task, ok := s.tasks[u.ID]
		if !ok || task.Position == u.Position {
			continue
		}
		task.Position = u.Position
		s.tasks[u.ID] = task
		moved[u.ID] = true
	}
	s.settle(moved)

	out := s.wire()
	s.remember(idempotencyKey, reply{tasks: out})
	return out, nil
}

// settle resolves collisions and closes gaps, stamping every task whose
// position changed here or is listed in moved. It must be called with s.mu held.
func (s *MemoryServer) settle(moved map[string]bool) {
	current := s.sorted()
	resolved, _ := ordering.ResolveCollisions(current)
	all, _ := ordering.Normalize(resolved)

	before := make(map[string]int64, len(current))
	for _, t := range current {
		before[t.ID] = t.Position
	}
	var now time.Time
	for _, t := range all {
		if t.Position == before[t.ID] && !moved[t.ID] {
			continue
		}
		if now.IsZero() {
			now = s.stamp()
		}
		t.UpdatedAt = now
		s.tasks[t.ID] = t
	}
}

func (s *MemoryServer) remember(key string, r reply) {
	if key != "" {
		s.replies[key] = r
	}
}
