package v1

import "time"

// Doc is a workspace document. Agent-produced artifacts are stored as docs
// under the "Artifacts" group.
type Doc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	GroupID   *string   `json:"groupId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocGroup is a named, ordered grouping of workspace documents.
type DocGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateDocRequest creates a new workspace document.
type CreateDocRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	GroupID *string `json:"groupId,omitempty"`
}

// UpdateDocRequest is a partial document update.
type UpdateDocRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	GroupID *string `json:"groupId,omitempty"`
}

// CreateDocGroupRequest creates a new document group.
type CreateDocGroupRequest struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}
