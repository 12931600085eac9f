package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a captured task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusDeclined Status = "declined"
)

// Source classifies where a snippet was captured from.
type Source string

const (
	SourceEmail Source = "email"
	SourceChat  Source = "chat"
	SourceJira  Source = "jira"
	SourceWeb   Source = "web"
)

// Priority levels match the tracker's four-level scheme.
type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
)

// Task is a captured snippet tracked through the pending/sent/declined lifecycle.
// ID is immutable once assigned; it is the join key between the local store, the
// remote task store, and the tracker cross-reference.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Source      Source   `json:"source"`
	URL         string   `json:"url,omitempty"`
	Priority    Priority `json:"priority"`
	// Deadline is a plain date, YYYY-MM-DD, empty when unset.
	Deadline  string    `json:"deadline,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`

	// Tracker cross-reference, populated once the task is sent.
	JiraKey    string `json:"jiraKey,omitempty"`
	JiraURL    string `json:"jiraUrl,omitempty"`
	JiraStatus string `json:"jiraStatus,omitempty"`
	Assignee   string `json:"assignee,omitempty"`

	// OutOfSync marks a record whose best-effort propagation to the remote
	// store failed; the two stores may disagree until the next full sync.
	OutOfSync bool `json:"outOfSync,omitempty"`
}

// NewLocalID generates a device-local task id from a capture timestamp.
func NewLocalID(at time.Time) string {
	return fmt.Sprintf("task-%d", at.UnixMilli())
}

// CanTransitionTo reports whether the status graph permits moving from s to next.
// The graph is pending->sent, pending->declined, declined->pending. Sent is
// terminal apart from tracker-side status mirroring.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusDeclined
	case StatusDeclined:
		return next == StatusPending
	default:
		return false
	}
}

// Action is a user-facing operation offered by a review surface.
type Action string

const (
	ActionSend    Action = "send"
	ActionDecline Action = "decline"
	ActionRestore Action = "restore"
	ActionDelete  Action = "delete"
)

// AvailableActions returns the action set a review surface may offer for a task.
// Declined tasks never offer send; sent tasks with a tracker key only offer delete.
func AvailableActions(t Task) []Action {
	switch t.Status {
	case StatusPending:
		return []Action{ActionSend, ActionDecline, ActionDelete}
	case StatusDeclined:
		return []Action{ActionRestore, ActionDelete}
	default:
		return []Action{ActionDelete}
	}
}

// Filter selects which slice of the task set a review surface displays.
type Filter string

const (
	FilterAll      Filter = "all" // everything except declined
	FilterPending  Filter = "pending"
	FilterSent     Filter = "sent"
	FilterDeclined Filter = "declined"
)

// Matches reports whether a task belongs in the filtered view.
func (f Filter) Matches(t Task) bool {
	switch f {
	case FilterPending:
		return t.Status == StatusPending
	case FilterSent:
		return t.Status == StatusSent
	case FilterDeclined:
		return t.Status == StatusDeclined
	default:
		return t.Status != StatusDeclined
	}
}
