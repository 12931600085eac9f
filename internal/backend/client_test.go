package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matthock/snipsync/pkg/types"
)

func newTestClient(url string) *Client {
	c := NewClient(func(ctx context.Context) string { return url }, zap.NewNop())
	c.wakeInterval = 5 * time.Millisecond
	return c
}

func TestHealthCheckNeverErrors(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if c.HealthCheck(context.Background()) {
		t.Fatalf("expected health check against closed port to be false")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if !newTestClient(srv.URL).HealthCheck(context.Background()) {
		t.Fatalf("expected health check to succeed")
	}
}

func TestWakeUpResolvesOnceAfterColdStart(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if probes.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	var attempts []int
	if err := c.WakeUp(context.Background(), func(n int) { attempts = append(attempts, n) }); err != nil {
		t.Fatalf("wake up: %v", err)
	}

	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %v", attempts)
	}
	for i, n := range attempts {
		if n != i+1 {
			t.Fatalf("attempt feedback out of order: %v", attempts)
		}
	}
	// No probe fires after resolution.
	settled := probes.Load()
	time.Sleep(30 * time.Millisecond)
	if probes.Load() != settled {
		t.Fatalf("probe issued after wake resolved")
	}
}

func TestWakeUpCancelable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- newTestClient(srv.URL).WakeUp(ctx, nil) }()

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wake up did not honor cancellation")
	}
}

func TestListTasksCollapsesFailuresToEmpty(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if got := c.ListTasks(context.Background(), types.StatusPending); len(got) != 0 {
		t.Fatalf("expected empty list on transport failure, got %d", len(got))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "pending" {
			t.Errorf("unexpected status filter %q", r.URL.Query().Get("status"))
		}
		json.NewEncoder(w).Encode([]types.Task{
			{ID: "task-2", Status: types.StatusPending},
			{ID: "task-1", Status: types.StatusPending},
		})
	}))
	defer srv.Close()

	got := newTestClient(srv.URL).ListTasks(context.Background(), types.StatusPending)
	if len(got) != 2 || got[0].ID != "task-2" {
		t.Fatalf("unexpected task list %+v", got)
	}
}

func TestCreateTaskSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "text is required"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateTask(context.Background(), CreateTaskRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() != "create task: text is required" {
		t.Fatalf("expected server message to surface, got %q", err.Error())
	}
}

func TestCreateTaskReturnsAssignedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode create payload: %v", err)
		}
		if !req.Metadata.UserApproved {
			t.Errorf("expected userApproved metadata")
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateTaskResponse{ID: "srv-42", Status: "pending"})
	}))
	defer srv.Close()

	created, err := newTestClient(srv.URL).CreateTask(context.Background(), CreateTaskRequest{
		Text:     "Book flight",
		Metadata: TaskMetadata{UserApproved: true, CapturedVia: "primary"},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if created.ID != "srv-42" {
		t.Fatalf("unexpected id %q", created.ID)
	}
}

func TestDeleteTaskIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).DeleteTask(context.Background(), "task-missing"); err != nil {
		t.Fatalf("expected 404 delete to read as success, got %v", err)
	}
}

func TestTransitionsReturnBooleanOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/task-1/send":
			var payload map[string]string
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode send payload: %v", err)
			}
			if payload["jiraKey"] != "OPS-7" {
				t.Errorf("unexpected jira key %q", payload["jiraKey"])
			}
			w.WriteHeader(http.StatusOK)
		case "/tasks/task-1/decline":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if !c.MarkSent(context.Background(), "task-1", "OPS-7", "https://acme.atlassian.net/browse/OPS-7") {
		t.Fatalf("expected mark sent to succeed")
	}
	if c.Decline(context.Background(), "task-1") {
		t.Fatalf("expected decline to report failure")
	}
}
