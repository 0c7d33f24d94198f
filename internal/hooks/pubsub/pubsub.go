package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/apptrail-sh/revisions/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Publisher sends revision events to Google Cloud Pub/Sub
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicPath string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPublisher creates a Pub/Sub publisher for topicPath.
//
// Authentication uses Application Default Credentials (Workload Identity,
// GOOGLE_APPLICATION_CREDENTIALS or gcloud auth application-default login).
func NewPublisher(ctx context.Context, topicPath string) (*Publisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Revisions of one deployment are delivered in the order they were seen.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &Publisher{
		client:    client,
		publisher: publisher,
		topicPath: topicPath,
	}, nil
}

// NewMessage encodes an event as a Pub/Sub message
func NewMessage(event model.RevisionEvent) (*pubsub.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	attributes := map[string]string{
		"event_type":   string(event.Kind),
		"cluster_name": event.Deployment.Cluster,
		"deployment":   event.Deployment.Deployment,
		"revision_uid": event.RevisionID,
	}
	if event.Status != "" {
		attributes["revision_status"] = event.Status
	}

	return &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: event.OrderingKey(),
	}, nil
}

// PublishBatch publishes every event and waits for all results
func (p *Publisher) PublishBatch(ctx context.Context, events []model.RevisionEvent) error {
	logger := log.FromContext(ctx).WithName("pubsub")

	results := make([]*pubsub.PublishResult, 0, len(events))
	published := make([]model.RevisionEvent, 0, len(events))
	var errs []error

	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, p.publisher.Publish(ctx, msg))
		published = append(published, event)
	}

	for i, result := range results {
		event := published[i]
		msgID, err := result.Get(ctx)
		if err != nil {
			logger.Error(err, "Failed to publish event to Pub/Sub",
				"topic", p.topicPath,
				"eventID", event.EventID,
				"orderingKey", event.OrderingKey(),
			)
			// A failed ordering key stays paused until resumed
			p.publisher.ResumePublish(event.OrderingKey())
			errs = append(errs, fmt.Errorf("event %s: %w", event.EventID, err))
			continue
		}

		logger.V(1).Info("Event published to Pub/Sub",
			"topic", p.topicPath,
			"eventID", event.EventID,
			"messageID", msgID,
			"revisionUID", event.RevisionID,
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to publish %d of %d events to pubsub: %w", len(errs), len(events), errors.Join(errs...))
	}
	return nil
}

// Stop flushes outstanding messages and closes the client
func (p *Publisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
