package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TemporaryIDPrefix marks ids minted on the device before the server has acknowledged the task.
const TemporaryIDPrefix = "tmp-"

// Priority is the urgency of a task. It is stored in the clear.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultCategory is used when a task is created without one.
const DefaultCategory = "general"

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority parses a priority name case-insensitively. An empty string yields medium.
func ParsePriority(s string) (Priority, bool) {
	if s == "" {
		return PriorityMedium, true
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// EncryptedPayload is base64(iv || ciphertext || tag) as produced by the encryption package.
type EncryptedPayload string

// Task is the persisted and transmitted form of a task. Its text only ever
// exists here in encrypted form.
type Task struct {
	ID            string
	EncryptedText EncryptedPayload
	Completed     bool
	Category      string
	Priority      Priority
	Tags          []string
	Position      int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTemporaryID returns a client-side id for a task the server has not seen yet.
func NewTemporaryID() string {
	return TemporaryIDPrefix + uuid.NewString()
}

// IsTemporaryID reports whether id was minted by NewTemporaryID.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

// Clone returns a copy of t that shares no slices with it.
func (t Task) Clone() Task {
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

// IsTemporary reports whether the task is still waiting for a server id.
func (t Task) IsTemporary() bool {
	return IsTemporaryID(t.ID)
}

// TaskView is a task as shown to the user: decrypted text, or Locked when the
// text could not be decrypted with the current key.
type TaskView struct {
	Task
	Text   string
	Locked bool
}

// String returns the task text for display purposes.
func (v TaskView) String() string {
	if v.Locked {
		return "[locked]"
	}
	return v.Text
}

// PositionUpdate assigns a position to a task id.
type PositionUpdate struct {
	ID       string `json:"id"`
	Position int64  `json:"position"`
}

// Positions extracts the position of every task, in slice order.
func Positions(tasks []Task) []PositionUpdate {
	out := make([]PositionUpdate, len(tasks))
	for i, t := range tasks {
		out[i] = PositionUpdate{ID: t.ID, Position: t.Position}
	}
	return out
}
