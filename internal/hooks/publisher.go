package hooks

import (
	"context"

	"github.com/apptrail-sh/revisions/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RevisionEventPublisher is the interface for publishing revision events (batched)
type RevisionEventPublisher interface {
	PublishBatch(ctx context.Context, events []model.RevisionEvent) error
}

// LogPublisher writes every event to the logger
type LogPublisher struct{}

// PublishBatch logs each event of the batch
func (LogPublisher) PublishBatch(ctx context.Context, events []model.RevisionEvent) error {
	logger := log.FromContext(ctx).WithName("log-publisher")
	for _, event := range events {
		logger.Info("New deployment revision",
			"eventID", event.EventID,
			"cluster", event.Deployment.Cluster,
			"deployment", event.Deployment.Deployment,
			"revisionUID", event.RevisionID,
			"status", event.Status,
			"createdAt", event.CreatedAt,
		)
	}
	return nil
}
