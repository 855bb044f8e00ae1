// Package v1 defines the wire types shared between the Locus server and the
// local agent. JSON field names follow the server's camelCase convention.
package v1

import "time"

// TaskStatus represents the workflow status of a task.
type TaskStatus string

const (
	TaskStatusBacklog      TaskStatus = "BACKLOG"
	TaskStatusInProgress   TaskStatus = "IN_PROGRESS"
	TaskStatusReview       TaskStatus = "REVIEW"
	TaskStatusVerification TaskStatus = "VERIFICATION"
	TaskStatusDone         TaskStatus = "DONE"
	TaskStatusBlocked      TaskStatus = "BLOCKED"
)

// TaskPriority represents the priority of a task.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "LOW"
	TaskPriorityMedium   TaskPriority = "MEDIUM"
	TaskPriorityHigh     TaskPriority = "HIGH"
	TaskPriorityCritical TaskPriority = "CRITICAL"
)

// Task represents a task in a workspace backlog.
type Task struct {
	ID           string          `json:"id"`
	WorkspaceID  string          `json:"workspaceId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       TaskStatus      `json:"status"`
	Priority     TaskPriority    `json:"priority"`
	AssigneeRole *string         `json:"assigneeRole,omitempty"`
	AssignedTo   *string         `json:"assignedTo,omitempty"`
	SprintID     *string         `json:"sprintId,omitempty"`
	ParentID     *string         `json:"parentId,omitempty"`
	Checklist    []ChecklistItem `json:"checklist,omitempty"`
	Comments     []Comment       `json:"comments,omitempty"`
	ActivityLog  []Activity      `json:"activityLog,omitempty"`
	Docs         []Doc           `json:"docs,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Claimable reports whether a worker may claim the task. A task is claimable
// while in the backlog, or when it is marked in-progress but has lost its
// assignee (a previous worker died without resetting it).
func (t *Task) Claimable() bool {
	if t.Status == TaskStatusBacklog {
		return true
	}
	return t.Status == TaskStatusInProgress && (t.AssignedTo == nil || *t.AssignedTo == "")
}

// ChecklistItem is one entry of a task's acceptance checklist.
type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Comment is an append-only task comment.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity is an append-only task activity log entry.
type Activity struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateTaskRequest is a partial task update. Nil fields are left untouched;
// AssignedTo uses a double pointer so the agent can explicitly clear it.
type UpdateTaskRequest struct {
	Status     *TaskStatus `json:"status,omitempty"`
	AssignedTo **string    `json:"assignedTo,omitempty"`
}

// CreateCommentRequest posts a comment to a task.
type CreateCommentRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// DispatchRequest asks the server to atomically claim the next task for a
// worker. SprintID narrows the claim to one sprint when set.
type DispatchRequest struct {
	WorkerID string  `json:"workerId"`
	SprintID *string `json:"sprintId,omitempty"`
}

// DispatchResponse carries the claimed task, or a nil Task when the backlog
// is drained.
type DispatchResponse struct {
	Task *Task `json:"task"`
}
