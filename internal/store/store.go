// Package store holds the device-local key-value state: the task list mirror,
// the capture fallback queue, the single pending capture draft, and the backend
// URL override. It is the source of truth whenever the remote task store is
// unreachable.
//
// Callers always read-modify-write whole values. Two racing writers resolve
// last-write-wins, which is acceptable for a single-user device store.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/matthock/snipsync/pkg/types"
)

// Logical keys mirroring the extension's local storage surface.
const (
	keyTasks        = "tasks"
	keyPendingTasks = "pendingTasks"
	keyCaptureDraft = "captureTask"
	keyBackendURL   = "backendUrl"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is a sqlite-backed key-value state store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the state database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schemaSQL)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP",
		key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) getTaskList(ctx context.Context, key string) ([]types.Task, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.Task{}, nil
	}
	var tasks []types.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return tasks, nil
}

func (s *Store) setTaskList(ctx context.Context, key string, tasks []types.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.put(ctx, key, string(data))
}

// Tasks returns the full task list mirror, newest first. Absence is an empty list.
func (s *Store) Tasks(ctx context.Context) ([]types.Task, error) {
	return s.getTaskList(ctx, keyTasks)
}

// SetTasks replaces the full task list mirror.
func (s *Store) SetTasks(ctx context.Context, tasks []types.Task) error {
	return s.setTaskList(ctx, keyTasks, tasks)
}

// PendingTasks returns the capture fallback queue.
func (s *Store) PendingTasks(ctx context.Context) ([]types.Task, error) {
	return s.getTaskList(ctx, keyPendingTasks)
}

// SetPendingTasks replaces the capture fallback queue.
func (s *Store) SetPendingTasks(ctx context.Context, tasks []types.Task) error {
	return s.setTaskList(ctx, keyPendingTasks, tasks)
}

// CaptureDraft returns the single pending capture draft, if any.
func (s *Store) CaptureDraft(ctx context.Context) (*types.Task, error) {
	raw, ok, err := s.get(ctx, keyCaptureDraft)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var draft types.Task
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("decode capture draft: %w", err)
	}
	return &draft, nil
}

// SetCaptureDraft stores the pending capture draft for the fallback surface.
func (s *Store) SetCaptureDraft(ctx context.Context, draft types.Task) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode capture draft: %w", err)
	}
	return s.put(ctx, keyCaptureDraft, string(data))
}

// ClearCaptureDraft removes the pending capture draft.
func (s *Store) ClearCaptureDraft(ctx context.Context) error {
	return s.delete(ctx, keyCaptureDraft)
}

// BackendURL returns the configured backend URL override, empty when unset.
func (s *Store) BackendURL(ctx context.Context) (string, error) {
	raw, _, err := s.get(ctx, keyBackendURL)
	return raw, err
}

// SetBackendURL stores the backend URL override. An empty value clears it.
func (s *Store) SetBackendURL(ctx context.Context, url string) error {
	if url == "" {
		return s.delete(ctx, keyBackendURL)
	}
	return s.put(ctx, keyBackendURL, url)
}
