package domain

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// MutationKind identifies the shape of a queued change.
type MutationKind string

const (
	MutationCreate  MutationKind = "create"
	MutationUpdate  MutationKind = "update"
	MutationDelete  MutationKind = "delete"
	MutationReorder MutationKind = "reorder"
)

// Payload is the body of a queued mutation. Each kind has exactly one payload
// type, so a delete can never carry task fields.
type Payload interface {
	Kind() MutationKind
	isPayload()
}

// CreatePayload carries everything the server needs to create a task.
type CreatePayload struct {
	EncryptedText EncryptedPayload `json:"encryptedText"`
	Completed     bool             `json:"completed"`
	Category      string           `json:"category"`
	Priority      Priority         `json:"priority"`
	Tags          []string         `json:"tags"`
	Position      int64            `json:"position"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// UpdatePayload is a partial update; nil fields are left untouched.
type UpdatePayload struct {
	EncryptedText *EncryptedPayload `json:"encryptedText,omitempty"`
	Completed     *bool             `json:"completed,omitempty"`
	Category      *string           `json:"category,omitempty"`
	Priority      *Priority         `json:"priority,omitempty"`
	Tags          *[]string         `json:"tags,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// DeletePayload has no fields.
type DeletePayload struct{}

// ReorderPayload assigns positions to a batch of tasks in one call.
type ReorderPayload struct {
	Order []PositionUpdate `json:"order"`
}

func (CreatePayload) Kind() MutationKind  { return MutationCreate }
func (UpdatePayload) Kind() MutationKind  { return MutationUpdate }
func (DeletePayload) Kind() MutationKind  { return MutationDelete }
func (ReorderPayload) Kind() MutationKind { return MutationReorder }

func (CreatePayload) isPayload()  {}
func (UpdatePayload) isPayload()  {}
func (DeletePayload) isPayload()  {}
func (ReorderPayload) isPayload() {}

// Apply copies the non-nil fields of p onto t.
func (p UpdatePayload) Apply(t *Task) {
	if p.EncryptedText != nil {
		t.EncryptedText = *p.EncryptedText
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
}

// IsEmpty reports whether the update changes nothing.
func (p UpdatePayload) IsEmpty() bool {
	return p.EncryptedText == nil && p.Completed == nil && p.Category == nil && p.Priority == nil && p.Tags == nil
}

// Mutation is one entry of the offline queue.
type Mutation struct {
	Sequence       int64
	Kind           MutationKind
	Target         string
	Payload        Payload
	IdempotencyKey string
	EnqueuedAt     time.Time
}

// Retarget rewrites every reference to oldID, including ids inside a reorder
// batch. It is used when the server acknowledges a temporary id.
func (m Mutation) Retarget(oldID, newID string) Mutation {
	if m.Target == oldID {
		m.Target = newID
	}
	if p, ok := m.Payload.(ReorderPayload); ok {
		order := make([]PositionUpdate, len(p.Order))
		for i, u := range p.Order {
			if u.ID == oldID {
				u.ID = newID
			}
			order[i] = u
		}
		m.Payload = ReorderPayload{Order: order}
	}
	return m
}

// References reports whether the mutation mentions id anywhere.
func (m Mutation) References(id string) bool {
	if m.Target == id {
		return true
	}
	if p, ok := m.Payload.(ReorderPayload); ok {
		for _, u := range p.Order {
			if u.ID == id {
				return true
			}
		}
	}
	return false
}

// EncodePayload serializes p for storage in the queue.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: nil payload")
	}
	return sonic.ConfigStd.Marshal(p)
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(kind MutationKind, data []byte) (Payload, error) {
	switch kind {
	case MutationCreate:
		var p CreatePayload
		if err := sonic.ConfigStd.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case MutationUpdate:
		var p UpdatePayload
		if err := sonic.ConfigStd.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	case MutationDelete:
		return DeletePayload{}, nil
	case MutationReorder:
		var p ReorderPayload
		if err := sonic.ConfigStd.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown mutation kind %q", kind)
	}
}
