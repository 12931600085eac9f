package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/matthock/snipsync/pkg/types"
)

// priorityIDs is the fixed mapping from task priority to tracker priority id.
var priorityIDs = map[types.Priority]string{
	types.PriorityHighest: "1",
	types.PriorityHigh:    "2",
	types.PriorityMedium:  "3",
	types.PriorityLow:     "4",
}

// Config carries tracker connection settings.
type Config struct {
	BaseURL    string
	Username   string
	Token      string
	AuthMode   string // "basic" or "bearer"
	ProjectKey string
	IssueType  string
}

// Client wraps tracker API access for issue materialization and status mirroring.
type Client struct {
	client     *jira.Client
	logger     *zap.Logger
	baseURL    string
	projectKey string
	issueType  string
}

// NewClient creates a tracker client. Basic auth uses username+API token;
// bearer mode wraps a personal access token in an oauth2 static token source.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker base URL is required")
	}

	var httpClient *http.Client
	switch cfg.AuthMode {
	case "bearer":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), ts)
	default:
		tp := jira.BasicAuthTransport{
			Username: cfg.Username,
			Password: cfg.Token,
		}
		httpClient = tp.Client()
	}

	client, err := jira.NewClient(httpClient, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	issueType := cfg.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	return &Client{
		client:     client,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projectKey: cfg.ProjectKey,
		issueType:  issueType,
	}, nil
}

// IssueRequest describes the issue to materialize from an approved task.
type IssueRequest struct {
	Summary     string
	Description string
	Priority    types.Priority
	Deadline    string // YYYY-MM-DD, optional
	AssigneeID  string // tracker account id, optional
}

// CreateIssue creates a tracker issue and returns its key and browse URL.
func (c *Client) CreateIssue(req IssueRequest) (string, string, error) {
	fields := &jira.IssueFields{
		Project:     jira.Project{Key: c.projectKey},
		Type:        jira.IssueType{Name: c.issueType},
		Summary:     req.Summary,
		Description: req.Description,
		Priority:    &jira.Priority{ID: PriorityID(req.Priority)},
	}

	if req.Deadline != "" {
		due, err := time.Parse("2006-01-02", req.Deadline)
		if err != nil {
			c.logger.Warn("ignoring malformed deadline", zap.String("deadline", req.Deadline))
		} else {
			fields.Duedate = jira.Date(due)
		}
	}

	if req.AssigneeID != "" {
		fields.Assignee = &jira.User{AccountID: req.AssigneeID}
	}

	created, _, err := c.client.Issue.Create(&jira.Issue{Fields: fields})
	if err != nil {
		return "", "", fmt.Errorf("failed to create issue: %w", err)
	}

	return created.Key, c.baseURL + "/browse/" + created.Key, nil
}

// AddComment appends a comment to an issue.
func (c *Client) AddComment(issueKey, body string) error {
	_, _, err := c.client.Issue.AddComment(issueKey, &jira.Comment{
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	return nil
}

// IssueSnapshot is the tracker-side view mirrored onto sent tasks.
type IssueSnapshot struct {
	Status   string
	Assignee string
	Priority string
	DueDate  string
}

// GetIssueSnapshot fetches the current tracker state for one issue.
func (c *Client) GetIssueSnapshot(issueKey string) (*IssueSnapshot, error) {
	issue, _, err := c.client.Issue.Get(issueKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	snap := &IssueSnapshot{}
	if issue.Fields == nil {
		return snap, nil
	}
	if issue.Fields.Status != nil {
		snap.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee != nil {
		snap.Assignee = issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.Priority != nil {
		snap.Priority = issue.Fields.Priority.Name
	}
	if due := time.Time(issue.Fields.Duedate); !due.IsZero() {
		snap.DueDate = due.Format("2006-01-02")
	}

	return snap, nil
}

// TransitionIssue moves an issue to the named status, matching the target
// case-insensitively against the issue's available transitions.
func (c *Client) TransitionIssue(issueKey, status string) error {
	transitions, _, err := c.client.Issue.GetTransitions(issueKey)
	if err != nil {
		return fmt.Errorf("failed to get transitions: %w", err)
	}

	var transitionID string
	for _, transition := range transitions {
		if strings.EqualFold(transition.To.Name, status) {
			transitionID = transition.ID
			break
		}
	}

	if transitionID == "" {
		return fmt.Errorf("transition to status %s not found", status)
	}

	_, err = c.client.Issue.DoTransition(issueKey, transitionID)
	if err != nil {
		return fmt.Errorf("failed to transition issue: %w", err)
	}

	return nil
}

// AssignIssue sets the issue assignee by tracker account id.
func (c *Client) AssignIssue(issueKey, accountID string) error {
	_, err := c.client.Issue.UpdateAssignee(issueKey, &jira.User{AccountID: accountID})
	if err != nil {
		return fmt.Errorf("failed to assign issue: %w", err)
	}

	return nil
}

// UserRef identifies an assignable tracker user.
type UserRef struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// FindUsers searches tracker users matching a query, for assignee selection.
func (c *Client) FindUsers(query string) ([]UserRef, error) {
	users, _, err := c.client.User.Find(query)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	refs := make([]UserRef, 0, len(users))
	for _, u := range users {
		refs = append(refs, UserRef{AccountID: u.AccountID, DisplayName: u.DisplayName})
	}
	return refs, nil
}

// PriorityID maps a task priority onto the tracker's four-level id table.
// Unmapped values fall back to medium.
func PriorityID(p types.Priority) string {
	if id, ok := priorityIDs[p]; ok {
		return id
	}
	return priorityIDs[types.PriorityMedium]
}
