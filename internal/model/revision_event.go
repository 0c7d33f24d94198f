package model

import (
	"time"

	"github.com/apptrail-sh/revisions/internal/schema"
	"github.com/google/uuid"
)

type RevisionEventKind string

const (
	RevisionEventKindCreated RevisionEventKind = "REVISION_CREATED"
)

type SourceMetadata struct {
	WatcherID    string `json:"watcherId"`
	AgentVersion string `json:"agentVersion"`
}

type DeploymentRef struct {
	Cluster    string `json:"cluster"`
	Deployment string `json:"deployment"`
}

type CreatorRef struct {
	Uid  string `json:"uid"`
	Name string `json:"name"`
}

// RevisionEvent is published when the watcher sees a revision for the first time
type RevisionEvent struct {
	EventID    string            `json:"eventId"`
	OccurredAt time.Time         `json:"occurredAt"`
	Kind       RevisionEventKind `json:"kind"`
	Source     SourceMetadata    `json:"source"`
	Deployment DeploymentRef     `json:"deployment"`
	RevisionID string            `json:"revisionUid"`
	Name       string            `json:"name,omitempty"`
	Status     string            `json:"status,omitempty"`
	Labels     map[string]string `json:"labels"`
	Creator    *CreatorRef       `json:"creator,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewRevisionEvent builds the event payload for a newly seen revision
func NewRevisionEvent(
	rev schema.DeploymentRevision,
	cluster, deployment string,
	watcherID, agentVersion string,
) RevisionEvent {
	var creator *CreatorRef
	if rev.Creator != nil {
		creator = &CreatorRef{
			Uid:  rev.Creator.Uid,
			Name: rev.Creator.Name,
		}
	}

	return RevisionEvent{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Kind:       RevisionEventKindCreated,
		Source: SourceMetadata{
			WatcherID:    watcherID,
			AgentVersion: agentVersion,
		},
		Deployment: DeploymentRef{
			Cluster:    cluster,
			Deployment: deployment,
		},
		RevisionID: rev.Uid,
		Name:       rev.Name,
		Status:     string(rev.Status),
		Labels:     rev.LabelMap(),
		Creator:    creator,
		CreatedAt:  rev.CreatedAt,
	}
}

// OrderingKey groups events of the same deployment
func (e RevisionEvent) OrderingKey() string {
	return e.Deployment.Cluster + "/" + e.Deployment.Deployment
}
