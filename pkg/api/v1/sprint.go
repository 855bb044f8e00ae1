package v1

import "time"

// SprintStatus represents the lifecycle status of a sprint.
type SprintStatus string

const (
	SprintStatusPlanned   SprintStatus = "PLANNED"
	SprintStatusActive    SprintStatus = "ACTIVE"
	SprintStatusCompleted SprintStatus = "COMPLETED"
)

// Sprint is a named time-boxed bucket of tasks. At most one sprint per
// workspace is ACTIVE.
type Sprint struct {
	ID               string       `json:"id"`
	WorkspaceID      string       `json:"workspaceId"`
	Name             string       `json:"name"`
	Status           SprintStatus `json:"status"`
	Mindmap          string       `json:"mindmap,omitempty"`
	MindmapUpdatedAt *time.Time   `json:"mindmapUpdatedAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// MindmapStale reports whether the sprint mindmap needs regeneration: the
// mindmap is empty, never timestamped, or older than the newest task.
func (s *Sprint) MindmapStale(tasks []Task) bool {
	if s.Mindmap == "" || s.MindmapUpdatedAt == nil {
		return true
	}
	for i := range tasks {
		if tasks[i].CreatedAt.After(*s.MindmapUpdatedAt) {
			return true
		}
	}
	return false
}

// UpdateSprintRequest is a partial sprint update used to persist a freshly
// generated mindmap.
type UpdateSprintRequest struct {
	Mindmap          *string    `json:"mindmap,omitempty"`
	MindmapUpdatedAt *time.Time `json:"mindmapUpdatedAt,omitempty"`
}
