package syncer

import (
	"time"

	"task-sync/internal/domain"
)

// State is the coordinator's position in the sync lifecycle.
type State int

const (
	StateOffline State = iota
	StateSyncing
	StateSynced
	StateConflictResolution
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	case StateConflictResolution:
		return "conflict-resolution"
	default:
		return "unknown"
	}
}

// EventType identifies what an Event reports.
type EventType string

const (
	// EventStateChanged is sent on every state transition.
	EventStateChanged EventType = "state_changed"
	// EventConflictDropped is sent when a queued mutation targeted a task
	// that was deleted on another device. The mutation is gone and so is the
	// local copy of the task.
	EventConflictDropped EventType = "conflict_dropped"
	// EventMutationRejected is sent when the server refused a queued mutation
	// for a reason other than a conflict. The mutation is gone.
	EventMutationRejected EventType = "mutation_rejected"
	// EventAuthRequired is sent when the server stopped accepting the
	// credentials. Syncing is paused until ResumeAuth.
	EventAuthRequired EventType = "auth_required"
)

// Event informs the application about something it may need to show the
// user. Mutation and Err are set for the drop events.
type Event struct {
	Type     EventType
	State    State
	Mutation domain.Mutation
	Err      error
}

// Status is a snapshot for status output.
type Status struct {
	State        State
	Online       bool
	AuthRequired bool
	Unlocked     bool
	Pending      int
	Backend      string
	Degraded     bool
	// LastSync is zero when no cycle has completed yet.
	LastSync time.Time
}

// NewTask is user input for AddTask. Empty category and priority take their
// defaults.
type NewTask struct {
	Text     string
	Category string
	Priority string
	Tags     []string
}

// TaskUpdate is a partial edit. Nil fields are left unchanged.
type TaskUpdate struct {
	Text      *string
	Completed *bool
	Category  *string
	Priority  *string
	Tags      *[]string
}
