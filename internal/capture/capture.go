// Package capture turns a text-selection event into a persisted task. Two
// hand-off paths exist because the primary confirmation surface lives inside
// the page being captured and can be blocked by its content policy; the
// fallback path stores the draft for a standalone surface so a capture is
// never silently lost.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/backend"
	"github.com/matthock/snipsync/internal/classify"
	"github.com/matthock/snipsync/pkg/types"
)

const titleLimit = 50

// Selection is the raw capture gesture.
type Selection struct {
	Text      string `json:"text"`
	URL       string `json:"url"`
	PageTitle string `json:"pageTitle"`
}

// Route names the hand-off path a capture took.
type Route string

const (
	RoutePrimary  Route = "primary"
	RouteFallback Route = "fallback"
)

// Result reports where a captured draft went.
type Result struct {
	Draft types.Task `json:"draft"`
	Route Route      `json:"route"`
}

// Pinger probes whether the interactive confirmation surface is reachable.
// One short request, no retry; any failure reads as unreachable.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Handoff delivers a draft to the primary confirmation surface.
type Handoff interface {
	Deliver(ctx context.Context, draft types.Task) error
}

type draftStore interface {
	SetCaptureDraft(ctx context.Context, draft types.Task) error
	CaptureDraft(ctx context.Context) (*types.Task, error)
	ClearCaptureDraft(ctx context.Context) error
	PendingTasks(ctx context.Context) ([]types.Task, error)
	SetPendingTasks(ctx context.Context, tasks []types.Task) error
}

type taskCreator interface {
	CreateTask(ctx context.Context, payload backend.CreateTaskRequest) (*backend.CreateTaskResponse, error)
}

// Flow coordinates draft construction, surface hand-off, and submission.
type Flow struct {
	store   draftStore
	creator taskCreator
	surface Pinger
	handoff Handoff
	logger  *zap.Logger
	now     func() time.Time
}

// NewFlow creates a capture flow.
func NewFlow(store draftStore, creator taskCreator, surface Pinger, handoff Handoff, logger *zap.Logger) *Flow {
	return &Flow{
		store:   store,
		creator: creator,
		surface: surface,
		handoff: handoff,
		logger:  logger,
		now:     time.Now,
	}
}

// Capture builds a draft from a selection and routes it to a confirmation
// surface: the in-page surface when its ping answers, otherwise the fallback
// store key read by the standalone surface on startup.
func (f *Flow) Capture(ctx context.Context, sel Selection) (*Result, error) {
	text := strings.TrimSpace(sel.Text)
	if text == "" {
		return nil, fmt.Errorf("selection is empty")
	}

	now := f.now()
	draft := types.Task{
		ID:          types.NewLocalID(now),
		Description: text,
		Source:      classify.Source(sel.URL),
		URL:         sel.URL,
		Priority:    types.PriorityMedium,
		Status:      types.StatusPending,
		CreatedAt:   now,
	}

	captureID := uuid.NewString()
	if f.surface != nil && f.surface.Ping(ctx) {
		if err := f.handoff.Deliver(ctx, draft); err == nil {
			f.logger.Info("draft handed to primary surface",
				zap.String("capture_id", captureID),
				zap.String("task_id", draft.ID),
				zap.String("source", string(draft.Source)),
			)
			return &Result{Draft: draft, Route: RoutePrimary}, nil
		}
		// Surface answered the ping but rejected the draft; fall through.
	}

	if err := f.store.SetCaptureDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("stash capture draft: %w", err)
	}
	f.enqueuePending(ctx, draft)
	f.logger.Info("draft stashed for fallback surface",
		zap.String("capture_id", captureID),
		zap.String("task_id", draft.ID),
	)
	return &Result{Draft: draft, Route: RouteFallback}, nil
}

// enqueuePending keeps the fallback queue, so a draft survives even if the
// standalone surface never opens. Queue failures are logged, not fatal: the
// captureTask key already holds the draft.
func (f *Flow) enqueuePending(ctx context.Context, draft types.Task) {
	queue, err := f.store.PendingTasks(ctx)
	if err != nil {
		f.logger.Warn("failed to read pending queue", zap.Error(err))
		return
	}
	if err := f.store.SetPendingTasks(ctx, append([]types.Task{draft}, queue...)); err != nil {
		f.logger.Warn("failed to extend pending queue", zap.Error(err))
	}
}

// dequeuePending drops a submitted draft from the fallback queue.
func (f *Flow) dequeuePending(ctx context.Context, id string) {
	queue, err := f.store.PendingTasks(ctx)
	if err != nil {
		f.logger.Warn("failed to read pending queue", zap.Error(err))
		return
	}
	kept := queue[:0]
	for _, t := range queue {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if err := f.store.SetPendingTasks(ctx, kept); err != nil {
		f.logger.Warn("failed to trim pending queue", zap.Error(err))
	}
}

// Confirmation carries the user's edits from a confirmation surface.
type Confirmation struct {
	Title    string         `json:"title"`
	Priority types.Priority `json:"priority"`
	Deadline string         `json:"deadline"`
	Via      Route          `json:"via"`
}

// Confirm submits a confirmed draft to the remote task store and clears the
// transient draft on success.
func (f *Flow) Confirm(ctx context.Context, draft types.Task, c Confirmation) (*backend.CreateTaskResponse, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = DeriveTitle(draft.Description)
	}
	priority := c.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	via := string(c.Via)
	if via == "" {
		via = string(RouteFallback)
	}

	created, err := f.creator.CreateTask(ctx, backend.CreateTaskRequest{
		Text:        draft.Description,
		Title:       title,
		Description: draft.Description,
		Source:      draft.Source,
		URL:         draft.URL,
		Priority:    priority,
		Deadline:    c.Deadline,
		CreatedAt:   draft.CreatedAt,
		Metadata: backend.TaskMetadata{
			UserApproved: true,
			CapturedVia:  via,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := f.store.ClearCaptureDraft(ctx); err != nil {
		f.logger.Warn("failed to clear capture draft", zap.Error(err))
	}
	f.dequeuePending(ctx, draft.ID)
	return created, nil
}

// PendingDraft returns the stashed draft a fallback surface reads on startup.
func (f *Flow) PendingDraft(ctx context.Context) (*types.Task, error) {
	return f.store.CaptureDraft(ctx)
}

// DiscardDraft drops the stashed draft without submitting it.
func (f *Flow) DiscardDraft(ctx context.Context) error {
	return f.store.ClearCaptureDraft(ctx)
}

// DeriveTitle derives a display title from a description: the trimmed text
// verbatim when it fits, else the first 50 characters plus an ellipsis.
func DeriveTitle(description string) string {
	trimmed := strings.TrimSpace(description)
	runes := []rune(trimmed)
	if len(runes) <= titleLimit {
		return trimmed
	}
	return string(runes[:titleLimit]) + "..."
}
