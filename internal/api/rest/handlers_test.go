package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/backend"
	"github.com/matthock/snipsync/internal/capture"
	"github.com/matthock/snipsync/internal/jira"
	"github.com/matthock/snipsync/internal/lifecycle"
	"github.com/matthock/snipsync/pkg/types"
)

type fakeLifecycle struct {
	tasks      []types.Task
	lastFilter types.Filter
	sendErr    error
	cleared    bool
	confirmed  bool
}

func (f *fakeLifecycle) Tasks(ctx context.Context, filter types.Filter) ([]types.Task, error) {
	f.lastFilter = filter
	var out []types.Task
	for _, t := range f.tasks {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLifecycle) SendToJira(ctx context.Context, taskID, assigneeID string) (*types.Task, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &types.Task{ID: taskID, Status: types.StatusSent, JiraKey: "OPS-1", Assignee: assigneeID}, nil
}

func (f *fakeLifecycle) Decline(ctx context.Context, taskID string) (*types.Task, error) {
	return &types.Task{ID: taskID, Status: types.StatusDeclined}, nil
}

func (f *fakeLifecycle) Restore(ctx context.Context, taskID string) (*types.Task, error) {
	return &types.Task{ID: taskID, Status: types.StatusPending}, nil
}

func (f *fakeLifecycle) Delete(ctx context.Context, taskID string) error { return nil }

func (f *fakeLifecycle) ClearAll(ctx context.Context, confirmed bool) error {
	f.confirmed = confirmed
	if !confirmed {
		return lifecycle.ErrConfirmationRequired
	}
	f.cleared = true
	return nil
}

func (f *fakeLifecycle) SyncFromBackend(ctx context.Context) (int, error) { return 2, nil }
func (f *fakeLifecycle) SyncTasks(ctx context.Context) (int, error)       { return 2, nil }

func (f *fakeLifecycle) WakeBackend(ctx context.Context, onAttempt func(int)) error {
	if onAttempt != nil {
		onAttempt(1)
		onAttempt(2)
	}
	return nil
}

func (f *fakeLifecycle) FindUsers(query string) ([]jira.UserRef, error) {
	return []jira.UserRef{{AccountID: "abc", DisplayName: "Dana Ops"}}, nil
}

type fakeCapturer struct {
	draft *types.Task
}

func (f *fakeCapturer) Capture(ctx context.Context, sel capture.Selection) (*capture.Result, error) {
	return &capture.Result{
		Draft: types.Task{ID: "task-1", Description: strings.TrimSpace(sel.Text)},
		Route: capture.RouteFallback,
	}, nil
}

func (f *fakeCapturer) Confirm(ctx context.Context, draft types.Task, c capture.Confirmation) (*backend.CreateTaskResponse, error) {
	return &backend.CreateTaskResponse{ID: "srv-1", Status: "pending"}, nil
}

func (f *fakeCapturer) PendingDraft(ctx context.Context) (*types.Task, error) {
	return f.draft, nil
}

func (f *fakeCapturer) DiscardDraft(ctx context.Context) error {
	f.draft = nil
	return nil
}

func newTestRouter(l *fakeLifecycle, c *fakeCapturer) http.Handler {
	h := NewHandler(l, c, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func TestListTasksDefaultsToAllFilter(t *testing.T) {
	l := &fakeLifecycle{tasks: []types.Task{
		{ID: "task-1", Status: types.StatusPending},
		{ID: "task-2", Status: types.StatusDeclined},
	}}
	router := newTestRouter(l, &fakeCapturer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if l.lastFilter != types.FilterAll {
		t.Fatalf("expected default all filter, got %q", l.lastFilter)
	}

	var resp struct {
		Tasks []types.Task `json:"tasks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "task-1" {
		t.Fatalf("declined task leaked into default view: %+v", resp.Tasks)
	}
}

func TestSendTask(t *testing.T) {
	router := newTestRouter(&fakeLifecycle{}, &fakeCapturer{})

	body := strings.NewReader(`{"assigneeId":"abc"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks/task-1/send", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var task types.Task
	if err := json.NewDecoder(rec.Body).Decode(&task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != types.StatusSent || task.JiraKey != "OPS-1" {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestClearTasksRequiresConfirmQuery(t *testing.T) {
	l := &fakeLifecycle{}
	router := newTestRouter(l, &fakeCapturer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/tasks", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm, got %d", rec.Code)
	}
	if l.cleared {
		t.Fatalf("unconfirmed clear must not run")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/tasks?confirm=true", nil))
	if rec.Code != http.StatusOK || !l.cleared {
		t.Fatalf("expected confirmed clear to run, status %d", rec.Code)
	}
}

func TestCaptureAndDraftLifecycle(t *testing.T) {
	c := &fakeCapturer{}
	router := newTestRouter(&fakeLifecycle{}, c)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"text":"Book flight by Friday","url":"https://app.slack.com/c/1"}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/capture", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status %d", rec.Code)
	}

	var result capture.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Route != capture.RouteFallback || result.Draft.Description != "Book flight by Friday" {
		t.Fatalf("unexpected result %+v", result)
	}

	// No stashed draft reads as 404 for the fallback surface.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/capture/draft", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent draft, got %d", rec.Code)
	}

	c.draft = &types.Task{ID: "task-9"}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/capture/draft", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stashed draft, got %d", rec.Code)
	}
}

func TestWakeBackendReportsAttempts(t *testing.T) {
	router := newTestRouter(&fakeLifecycle{}, &fakeCapturer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backend/wake", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var resp struct {
		Awake    bool `json:"awake"`
		Attempts int  `json:"attempts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Awake || resp.Attempts != 2 {
		t.Fatalf("unexpected wake response %+v", resp)
	}
}

func TestSyncReturnsAddedCount(t *testing.T) {
	router := newTestRouter(&fakeLifecycle{}, &fakeCapturer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["added"] != 2 {
		t.Fatalf("expected added count 2, got %d", resp["added"])
	}
}
