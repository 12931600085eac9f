// Package backend wraps the remote task store's HTTP surface. The store may be
// parked in a scale-to-zero state between uses, so the client carries a
// liveness-wake protocol alongside plain CRUD calls.
//
// Failure policy: transport failures collapse to false/empty results. Callers
// fall back to the local store; nothing here retries except WakeUp.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matthock/snipsync/pkg/types"
)

const healthTimeout = 10 * time.Second

// Resolver supplies the store base URL, consulted once per operation.
type Resolver func(ctx context.Context) string

// Client is a remote task store client.
type Client struct {
	resolve      Resolver
	httpClient   *http.Client
	logger       *zap.Logger
	wakeInterval time.Duration
}

// NewClient creates a task store client. The resolver is consulted on every
// call so a runtime URL override takes effect without reconstruction.
func NewClient(resolve Resolver, logger *zap.Logger) *Client {
	return &Client{
		resolve:      resolve,
		httpClient:   &http.Client{},
		logger:       logger,
		wakeInterval: 3 * time.Second,
	}
}

// CreateTaskRequest is the POST /tasks payload.
type CreateTaskRequest struct {
	Text        string         `json:"text"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Source      types.Source   `json:"source"`
	URL         string         `json:"url,omitempty"`
	Priority    types.Priority `json:"priority"`
	Deadline    string         `json:"deadline,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Metadata    TaskMetadata   `json:"metadata"`
}

// TaskMetadata records how a task entered the store.
type TaskMetadata struct {
	UserApproved bool   `json:"userApproved"`
	CapturedVia  string `json:"capturedVia"`
}

// CreateTaskResponse is the store's acknowledgement of a created task.
type CreateTaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HealthCheck probes the store's liveness endpoint with a bounded timeout.
// It never returns an error; any failure reads as not ready.
func (c *Client) HealthCheck(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.resolve(ctx)+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WakeUp blocks until the store answers its health probe. An immediate probe
// short-circuits the common warm case; otherwise it re-probes at a fixed
// interval with no attempt cap, because a cold-started backend cannot be told
// apart from a dead one and the policy is to resolve in the caller's favor.
// Probes never overlap: each waits for the previous to settle. Cancellation is
// the caller's context; the only error returned is the context's.
func (c *Client) WakeUp(ctx context.Context, onAttempt func(attempt int)) error {
	attempt := 1
	if onAttempt != nil {
		onAttempt(attempt)
	}
	if c.HealthCheck(ctx) {
		return nil
	}

	ticker := time.NewTicker(c.wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			attempt++
			if onAttempt != nil {
				onAttempt(attempt)
			}
			if c.HealthCheck(ctx) {
				c.logger.Info("task store awake", zap.Int("attempts", attempt))
				return nil
			}
		}
	}
}

// ListTasks fetches tasks filtered by status. Failures collapse to an empty
// list; the caller decides whether to fall back to the local store.
func (c *Client) ListTasks(ctx context.Context, status types.Status) []types.Task {
	url := fmt.Sprintf("%s/tasks?status=%s", c.resolve(ctx), status)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return []types.Task{}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("task store unreachable", zap.Error(err))
		return []types.Task{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("task list rejected", zap.Int("status", resp.StatusCode))
		return []types.Task{}
	}

	var tasks []types.Task
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		c.logger.Warn("task list malformed", zap.Error(err))
		return []types.Task{}
	}
	return tasks
}

// GetTask fetches one task by id. A 404 reads as absence.
func (c *Client) GetTask(ctx context.Context, id string) (*types.Task, error) {
	url := fmt.Sprintf("%s/tasks/%s", c.resolve(ctx), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch task %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch task %s: status %d", id, resp.StatusCode)
	}

	var task types.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// CreateTask persists a new task. On rejection the server-provided error
// message is surfaced when present, else a generic status-code message.
func (c *Client) CreateTask(ctx context.Context, payload CreateTaskRequest) (*CreateTaskResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(ctx)+"/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var remoteErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &remoteErr) == nil && remoteErr.Error != "" {
			return nil, fmt.Errorf("create task: %s", remoteErr.Error)
		}
		return nil, fmt.Errorf("create task: status %d", resp.StatusCode)
	}

	var created CreateTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	return &created, nil
}

// DeleteTask removes a task. Idempotent: a 404 is success.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/tasks/%s", c.resolve(ctx), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete task %s: status %d", id, resp.StatusCode)
	}
	return nil
}

// MarkSent records the tracker cross-reference on the stored task.
func (c *Client) MarkSent(ctx context.Context, id, jiraKey, jiraURL string) bool {
	return c.postTransition(ctx, id, "send", map[string]string{
		"jiraKey": jiraKey,
		"jiraUrl": jiraURL,
	})
}

// Decline marks the stored task declined.
func (c *Client) Decline(ctx context.Context, id string) bool {
	return c.postTransition(ctx, id, "decline", nil)
}

// Restore moves a declined stored task back to pending.
func (c *Client) Restore(ctx context.Context, id string) bool {
	return c.postTransition(ctx, id, "restore", nil)
}

func (c *Client) postTransition(ctx context.Context, id, action string, payload map[string]string) bool {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false
		}
		body = bytes.NewReader(raw)
	}

	url := fmt.Sprintf("%s/tasks/%s/%s", c.resolve(ctx), id, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return false
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("task transition failed",
			zap.String("task_id", id),
			zap.String("action", action),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
