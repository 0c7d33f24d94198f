package schema

import (
	"encoding/json"
	"time"
)

type ResourceType string
type DeploymentRevisionStatus string

const (
	ResourceTypeDeploymentRevision ResourceType = "deployment_revision"

	DeploymentRevisionStatusActive   DeploymentRevisionStatus = "active"
	DeploymentRevisionStatusInactive DeploymentRevisionStatus = "inactive"
)

// LabelItem is a single key/value label attached to a resource
type LabelItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// UserSchema describes the user who created a resource
type UserSchema struct {
	Uid       string `json:"uid"`
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ResourceSchema holds the fields shared by every API resource
type ResourceSchema struct {
	Uid          string       `json:"uid"`
	Name         string       `json:"name"`
	ResourceType ResourceType `json:"resource_type"`
	Labels       []LabelItem  `json:"labels"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DeletedAt    *time.Time   `json:"deleted_at"`
}

// DeploymentRevision is one historical snapshot of a deployment.
// Targets are kept as raw JSON, their shape is owned by the API server.
type DeploymentRevision struct {
	ResourceSchema
	Creator *UserSchema              `json:"creator"`
	Status  DeploymentRevisionStatus `json:"status"`
	Targets []json.RawMessage        `json:"targets"`
}

// LabelMap flattens the label list into a map. Later duplicates win.
func (r *DeploymentRevision) LabelMap() map[string]string {
	labels := make(map[string]string, len(r.Labels))
	for _, l := range r.Labels {
		labels[l.Key] = l.Value
	}
	return labels
}

// IsActive reports whether the revision is the one currently rolled out
func (r *DeploymentRevision) IsActive() bool {
	return r.Status == DeploymentRevisionStatusActive
}
