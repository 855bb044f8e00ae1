// Package api provides the HTTP client for the Locus server REST API.
// All endpoints are JSON over HTTP with Bearer authentication; the server is
// the source of truth for tasks, sprints, and docs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// ErrNoTask is returned by Dispatch when the server has no claimable task.
var ErrNoTask = errors.New("no claimable task")

// DefaultTimeout applies to all non-LLM API calls.
const DefaultTimeout = 10 * time.Second

// Client communicates with the Locus server for one workspace.
type Client struct {
	baseURL     string
	apiKey      string
	workspaceID string
	httpClient  *http.Client
	logger      *logger.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
	Timeout     time.Duration
}

// NewClient creates a new Locus API client.
func NewClient(opts Options, log *logger.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		workspaceID: opts.WorkspaceID,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.WithFields(zap.String("component", "api-client")),
	}
}

// WorkspaceID returns the workspace this client is bound to.
func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

// Dispatch asks the server to atomically claim the next task for workerID.
// Returns ErrNoTask when the backlog is drained.
func (c *Client) Dispatch(ctx context.Context, workerID string, sprintID *string) (*v1.Task, error) {
	req := v1.DispatchRequest{WorkerID: workerID, SprintID: sprintID}
	var resp v1.DispatchResponse
	err := c.do(ctx, http.MethodPost, c.wsPath("dispatch"), req, &resp)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNoTask
		}
		return nil, err
	}
	if resp.Task == nil {
		return nil, ErrNoTask
	}
	return resp.Task, nil
}

// GetTask fetches a full task including comments, checklist, and docs.
func (c *Client) GetTask(ctx context.Context, taskID string) (*v1.Task, error) {
	var task v1.Task
	if err := c.do(ctx, http.MethodGet, c.wsPath("tasks", taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, req v1.UpdateTaskRequest) error {
	return c.do(ctx, http.MethodPatch, c.wsPath("tasks", taskID), req, nil)
}

// CreateComment posts a comment to a task.
func (c *Client) CreateComment(ctx context.Context, taskID string, req v1.CreateCommentRequest) error {
	return c.do(ctx, http.MethodPost, c.wsPath("tasks", taskID, "comment"), req, nil)
}

// GetActiveSprint returns the workspace's active sprint, or nil when none is
// active.
func (c *Client) GetActiveSprint(ctx context.Context) (*v1.Sprint, error) {
	var sprint *v1.Sprint
	err := c.do(ctx, http.MethodGet, c.wsPath("sprints", "active"), nil, &sprint)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return sprint, nil
}

// GetSprint fetches a sprint by id.
func (c *Client) GetSprint(ctx context.Context, sprintID string) (*v1.Sprint, error) {
	var sprint v1.Sprint
	if err := c.do(ctx, http.MethodGet, c.wsPath("sprints", sprintID), nil, &sprint); err != nil {
		return nil, err
	}
	return &sprint, nil
}

// ListSprintTasks fetches the task list for a sprint.
func (c *Client) ListSprintTasks(ctx context.Context, sprintID string) ([]v1.Task, error) {
	var tasks []v1.Task
	path := c.wsPath("tasks") + "?sprintId=" + url.QueryEscape(sprintID)
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateSprint applies a partial update to a sprint (mindmap persistence).
func (c *Client) UpdateSprint(ctx context.Context, sprintID string, req v1.UpdateSprintRequest) error {
	return c.do(ctx, http.MethodPatch, c.wsPath("sprints", sprintID), req, nil)
}

// ListDocGroups fetches all document groups in the workspace.
func (c *Client) ListDocGroups(ctx context.Context) ([]v1.DocGroup, error) {
	var groups []v1.DocGroup
	if err := c.do(ctx, http.MethodGet, c.wsPath("doc-groups"), nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateDocGroup creates a document group.
func (c *Client) CreateDocGroup(ctx context.Context, req v1.CreateDocGroupRequest) (*v1.DocGroup, error) {
	var group v1.DocGroup
	if err := c.do(ctx, http.MethodPost, c.wsPath("doc-groups"), req, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListDocs fetches all documents in the workspace.
func (c *Client) ListDocs(ctx context.Context) ([]v1.Doc, error) {
	var docs []v1.Doc
	if err := c.do(ctx, http.MethodGet, c.wsPath("docs"), nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CreateDoc creates a workspace document.
func (c *Client) CreateDoc(ctx context.Context, req v1.CreateDocRequest) (*v1.Doc, error) {
	var doc v1.Doc
	if err := c.do(ctx, http.MethodPost, c.wsPath("docs"), req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDoc applies a partial update to a workspace document.
func (c *Client) UpdateDoc(ctx context.Context, docID string, req v1.UpdateDocRequest) error {
	return c.do(ctx, http.MethodPatch, c.wsPath("docs", docID), req, nil)
}

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("locus api: status %d: %s", e.StatusCode, e.Body)
}

// wsPath builds a workspace-scoped path from segments.
func (c *Client) wsPath(segments ...string) string {
	parts := append([]string{"workspaces", c.workspaceID}, segments...)
	return "/" + strings.Join(parts, "/")
}

// do executes one JSON request. A nil body sends no payload; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (status %d, body: %s): %w", resp.StatusCode, truncateBody(respBody), err)
	}
	return nil
}

const maxErrorBodyLen = 512

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}
