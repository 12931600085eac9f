// Package lifecycle is the single canonical task lifecycle service. Every
// review surface dispatches through it, so the task list lives in exactly one
// place per device: the local store mirror, reconciled against the remote
// task store and the issue tracker.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/jira"
	"github.com/matthock/snipsync/pkg/types"
)

// ErrConfirmationRequired guards the destructive clear-all operation.
var ErrConfirmationRequired = fmt.Errorf("clear all requires explicit confirmation")

// priorityNames filters tracker priority names down to the four levels the
// task model knows; anything else is left as the task already has it.
var priorityNames = map[types.Priority]struct{}{
	types.PriorityHighest: {},
	types.PriorityHigh:    {},
	types.PriorityMedium:  {},
	types.PriorityLow:     {},
}

// Backend is the remote task store surface the service depends on.
type Backend interface {
	HealthCheck(ctx context.Context) bool
	WakeUp(ctx context.Context, onAttempt func(attempt int)) error
	ListTasks(ctx context.Context, status types.Status) []types.Task
	GetTask(ctx context.Context, id string) (*types.Task, error)
	DeleteTask(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id, jiraKey, jiraURL string) bool
	Decline(ctx context.Context, id string) bool
	Restore(ctx context.Context, id string) bool
}

// Tracker is the issue-tracker surface the service depends on.
type Tracker interface {
	CreateIssue(req jira.IssueRequest) (key, url string, err error)
	AddComment(issueKey, body string) error
	GetIssueSnapshot(issueKey string) (*jira.IssueSnapshot, error)
	FindUsers(query string) ([]jira.UserRef, error)
}

// TaskStore is the local list mirror the service mutates.
type TaskStore interface {
	Tasks(ctx context.Context) ([]types.Task, error)
	SetTasks(ctx context.Context, tasks []types.Task) error
}

// Service coordinates the task lifecycle across the local mirror, the remote
// store, and the tracker.
type Service struct {
	store   TaskStore
	backend Backend
	tracker Tracker
	logger  *zap.Logger
}

// NewService creates the lifecycle service.
func NewService(store TaskStore, backend Backend, tracker Tracker, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		backend: backend,
		tracker: tracker,
		logger:  logger,
	}
}

// Tasks returns the filtered task list in canonical newest-first order.
func (s *Service) Tasks(ctx context.Context, filter types.Filter) ([]types.Task, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]types.Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Matches(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// SendToJira materializes a pending task as a tracker issue: create the issue,
// append a provenance comment, write the issue key back, flip the task to
// sent. Issue-creation failure aborts before any status change; comment and
// remote write-back failures are logged but not rolled back.
func (s *Service) SendToJira(ctx context.Context, taskID, assigneeID string) (*types.Task, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByID(tasks, taskID)

	// The remote store is canonical when it has the record.
	task := s.canonicalTask(ctx, tasks, idx, taskID)
	if task == nil {
		return nil, fmt.Errorf("task %s not found", taskID)
	}

	if task.JiraKey != "" {
		return nil, fmt.Errorf("task %s already sent as %s", taskID, task.JiraKey)
	}
	if !task.Status.CanTransitionTo(types.StatusSent) {
		return nil, fmt.Errorf("task %s is %s and cannot be sent", taskID, task.Status)
	}

	key, url, err := s.tracker.CreateIssue(jira.IssueRequest{
		Summary:     task.Title,
		Description: issueDescription(*task),
		Priority:    task.Priority,
		Deadline:    task.Deadline,
		AssigneeID:  assigneeID,
	})
	if err != nil {
		return nil, fmt.Errorf("create issue for task %s: %w", taskID, err)
	}

	if err := s.tracker.AddComment(key, provenanceComment(*task)); err != nil {
		s.logger.Warn("failed to append provenance comment",
			zap.String("task_id", taskID),
			zap.String("issue_key", key),
			zap.Error(err),
		)
	}

	task.JiraKey = key
	task.JiraURL = url
	task.Status = types.StatusSent
	task.OutOfSync = false

	if !s.backend.MarkSent(ctx, taskID, key, url) {
		// The local record is authoritative; the stores disagree until the
		// next successful sync, so surface that instead of discarding it.
		task.OutOfSync = true
		s.logger.Warn("remote store missed mark-sent", zap.String("task_id", taskID))
	}

	if idx >= 0 {
		tasks[idx] = *task
	} else {
		tasks = append([]types.Task{*task}, tasks...)
	}
	if err := s.store.SetTasks(ctx, tasks); err != nil {
		return nil, err
	}

	s.logger.Info("task sent to tracker",
		zap.String("task_id", taskID),
		zap.String("issue_key", key),
	)
	return task, nil
}

// Decline moves a pending task to declined. For remote-origin tasks the
// remote record is deleted best-effort; a failed delete marks the task out of
// sync rather than failing the action.
func (s *Service) Decline(ctx context.Context, taskID string) (*types.Task, error) {
	return s.transition(ctx, taskID, types.StatusDeclined, func(t *types.Task) {
		if !isLocalID(taskID) {
			if err := s.backend.DeleteTask(ctx, taskID); err != nil {
				t.OutOfSync = true
				s.logger.Warn("remote store missed decline delete",
					zap.String("task_id", taskID),
					zap.Error(err),
				)
			}
		}
	})
}

// Restore moves a declined task back to pending, propagating best-effort.
func (s *Service) Restore(ctx context.Context, taskID string) (*types.Task, error) {
	return s.transition(ctx, taskID, types.StatusPending, func(t *types.Task) {
		if !isLocalID(taskID) && !s.backend.Restore(ctx, taskID) {
			t.OutOfSync = true
			s.logger.Warn("remote store missed restore", zap.String("task_id", taskID))
		}
	})
}

func (s *Service) transition(ctx context.Context, taskID string, next types.Status, propagate func(*types.Task)) (*types.Task, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByID(tasks, taskID)
	if idx < 0 {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	if !tasks[idx].Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("task %s is %s and cannot become %s", taskID, tasks[idx].Status, next)
	}

	tasks[idx].Status = next
	propagate(&tasks[idx])

	if err := s.store.SetTasks(ctx, tasks); err != nil {
		return nil, err
	}
	result := tasks[idx]
	return &result, nil
}

// Delete removes a task from whichever store holds it. The remote delete is
// idempotent, so a record only known locally still deletes cleanly.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return err
	}
	idx := indexByID(tasks, taskID)
	if idx >= 0 {
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := s.store.SetTasks(ctx, tasks); err != nil {
			return err
		}
	}

	if err := s.backend.DeleteTask(ctx, taskID); err != nil {
		s.logger.Warn("remote store missed delete",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
	return nil
}

// ClearAll deletes every task everywhere. Refused without confirmation.
func (s *Service) ClearAll(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.backend.DeleteTask(ctx, t.ID); err != nil {
			s.logger.Warn("remote store missed bulk delete",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}
	}

	return s.store.SetTasks(ctx, []types.Task{})
}

// SyncFromBackend pulls pending tasks from the remote store and merges them by
// id. Ids already present locally are skipped, so repeated syncs never
// duplicate. Returns the number of newly added records.
func (s *Service) SyncFromBackend(ctx context.Context) (int, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = struct{}{}
	}

	var added []types.Task
	for _, remote := range s.backend.ListTasks(ctx, types.StatusPending) {
		if _, ok := seen[remote.ID]; ok {
			continue
		}
		seen[remote.ID] = struct{}{}
		added = append(added, normalize(remote))
	}
	if len(added) == 0 {
		return 0, nil
	}

	// New arrivals go to the front; insertion order stays newest first.
	merged := append(added, tasks...)
	if err := s.store.SetTasks(ctx, merged); err != nil {
		return 0, err
	}
	return len(added), nil
}

// SyncTasks is the full refresh: pull new pending tasks from the remote store,
// then mirror tracker-side state onto every sent task. Each sent task is
// fetched independently; a tracker failure for one never aborts the batch.
// Returns the number of newly pulled records.
func (s *Service) SyncTasks(ctx context.Context) (int, error) {
	added, err := s.SyncFromBackend(ctx)
	if err != nil {
		s.logger.Warn("backend sync failed", zap.Error(err))
	}

	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return added, err
	}

	var wg sync.WaitGroup
	for i := range tasks {
		if tasks[i].Status != types.StatusSent || tasks[i].JiraKey == "" {
			continue
		}
		wg.Add(1)
		go func(t *types.Task) {
			defer wg.Done()
			snap, err := s.tracker.GetIssueSnapshot(t.JiraKey)
			if err != nil {
				s.logger.Warn("tracker mirror failed",
					zap.String("issue_key", t.JiraKey),
					zap.Error(err),
				)
				return
			}
			t.JiraStatus = snap.Status
			if snap.Assignee != "" {
				t.Assignee = snap.Assignee
			}
			if snap.DueDate != "" {
				t.Deadline = snap.DueDate
			}
			if p := types.Priority(strings.ToLower(snap.Priority)); p != "" {
				if _, ok := priorityNames[p]; ok {
					t.Priority = p
				}
			}
		}(&tasks[i])
	}
	wg.Wait()

	return added, s.store.SetTasks(ctx, tasks)
}

// WakeBackend runs the wake protocol against the remote store.
func (s *Service) WakeBackend(ctx context.Context, onAttempt func(attempt int)) error {
	return s.backend.WakeUp(ctx, onAttempt)
}

// FindUsers searches tracker users for assignee selection.
func (s *Service) FindUsers(query string) ([]jira.UserRef, error) {
	return s.tracker.FindUsers(query)
}

// canonicalTask prefers the remote store's record, falling back to the local
// mirror when the store is unreachable or does not know the id.
func (s *Service) canonicalTask(ctx context.Context, tasks []types.Task, idx int, taskID string) *types.Task {
	if remote, err := s.backend.GetTask(ctx, taskID); err == nil && remote != nil {
		t := normalize(*remote)
		// Local lifecycle state wins over the remote copy's.
		if idx >= 0 {
			t.Status = tasks[idx].Status
			t.JiraKey = tasks[idx].JiraKey
			t.JiraURL = tasks[idx].JiraURL
		}
		return &t
	}
	if idx >= 0 {
		t := tasks[idx]
		return &t
	}
	return nil
}

func normalize(t types.Task) types.Task {
	if t.Priority == "" {
		t.Priority = types.PriorityMedium
	}
	if t.Status == "" {
		t.Status = types.StatusPending
	}
	if t.Source == "" {
		t.Source = types.SourceWeb
	}
	if t.Title == "" {
		t.Title = t.Description
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return t
}

func indexByID(tasks []types.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// isLocalID reports whether an id was generated on this device rather than
// assigned by the remote store.
func isLocalID(id string) bool {
	return strings.HasPrefix(id, "task-")
}

func issueDescription(t types.Task) string {
	var b strings.Builder
	b.WriteString(t.Description)
	b.WriteString("\n\n----\nCaptured from ")
	b.WriteString(string(t.Source))
	if t.URL != "" {
		b.WriteString(": ")
		b.WriteString(t.URL)
	}
	return b.String()
}

func provenanceComment(t types.Task) string {
	var b strings.Builder
	b.WriteString("Created from a captured snippet.\nSource: ")
	b.WriteString(string(t.Source))
	if t.URL != "" {
		b.WriteString("\nPage: ")
		b.WriteString(t.URL)
	}
	b.WriteString("\nCaptured at: ")
	b.WriteString(t.CreatedAt.Format(time.RFC3339))
	return b.String()
}
