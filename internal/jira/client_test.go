package jira

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/matthock/snipsync/pkg/types"
)

func newTestTrackerClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		Username:   "bot@example.com",
		Token:      "token",
		ProjectKey: "OPS",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestPriorityID(t *testing.T) {
	cases := []struct {
		priority types.Priority
		want     string
	}{
		{types.PriorityHighest, "1"},
		{types.PriorityHigh, "2"},
		{types.PriorityMedium, "3"},
		{types.PriorityLow, "4"},
		{types.Priority("urgent-ish"), "3"},
		{types.Priority(""), "3"},
	}
	for _, c := range cases {
		if got := PriorityID(c.priority); got != c.want {
			t.Errorf("PriorityID(%q) = %s, want %s", c.priority, got, c.want)
		}
	}
}

func TestCreateIssue(t *testing.T) {
	var captured map[string]any
	client, srv := newTestTrackerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue" && r.URL.Path != "/rest/api/2/issue/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode issue payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "10001", "key": "OPS-7"})
	}))

	key, url, err := client.CreateIssue(IssueRequest{
		Summary:     "Book flight by Friday",
		Description: "Book flight by Friday\n\nCaptured from chat: https://app.slack.com/client/T01",
		Priority:    types.PriorityMedium,
		Deadline:    "2026-09-04",
	})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if key != "OPS-7" {
		t.Fatalf("unexpected key %q", key)
	}
	if url != srv.URL+"/browse/OPS-7" {
		t.Fatalf("unexpected browse url %q", url)
	}

	fields, ok := captured["fields"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing fields: %v", captured)
	}
	priority, ok := fields["priority"].(map[string]any)
	if !ok || priority["id"] != "3" {
		t.Fatalf("expected medium priority id 3, got %v", fields["priority"])
	}
	if fields["duedate"] != "2026-09-04" {
		t.Fatalf("expected duedate 2026-09-04, got %v", fields["duedate"])
	}
}

func TestTransitionIssueMatchesByName(t *testing.T) {
	transitioned := false
	client, _ := newTestTrackerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]any{
					{"id": "11", "name": "To Do", "to": map[string]string{"name": "To Do"}},
					{"id": "31", "name": "Done", "to": map[string]string{"name": "Done"}},
				},
			})
		case r.Method == http.MethodPost:
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			tr, _ := payload["transition"].(map[string]any)
			if tr["id"] != "31" {
				t.Errorf("expected transition id 31, got %v", tr["id"])
			}
			transitioned = true
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	if err := client.TransitionIssue("OPS-7", "done"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !transitioned {
		t.Fatalf("expected a transition POST")
	}

	if err := client.TransitionIssue("OPS-7", "In Review"); err == nil {
		t.Fatalf("expected missing transition to error")
	}
}

func TestGetIssueSnapshot(t *testing.T) {
	client, _ := newTestTrackerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":  "10001",
			"key": "OPS-7",
			"fields": map[string]any{
				"status":   map[string]string{"name": "In Progress"},
				"assignee": map[string]string{"displayName": "Dana Ops"},
				"priority": map[string]string{"name": "High"},
				"duedate":  "2026-09-04",
			},
		})
	}))

	snap, err := client.GetIssueSnapshot("OPS-7")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != "In Progress" || snap.Assignee != "Dana Ops" || snap.Priority != "High" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.DueDate != "2026-09-04" {
		t.Fatalf("unexpected due date %q", snap.DueDate)
	}
}

func TestFindUsers(t *testing.T) {
	client, _ := newTestTrackerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("query") != "dana" && q.Get("username") != "dana" {
			t.Errorf("expected search term 'dana', got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"accountId": "abc123", "displayName": "Dana Ops"},
		})
	}))

	users, err := client.FindUsers("dana")
	if err != nil {
		t.Fatalf("find users: %v", err)
	}
	if len(users) != 1 || users[0].AccountID != "abc123" {
		t.Fatalf("unexpected users %+v", users)
	}
}
