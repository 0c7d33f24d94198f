package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/apptrail-sh/revisions/internal/model"
	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Payload is the JSON body posted to the webhook
type Payload struct {
	Events []model.RevisionEvent `json:"events"`
}

// Publisher posts batches of revision events to an HTTP endpoint
type Publisher struct {
	client   *resty.Client
	endpoint string
}

// NewPublisher creates a webhook publisher for endpoint. Unlike the read-only
// API client, delivery is retried a few times.
func NewPublisher(endpoint, userAgent string) *Publisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", userAgent)

	return &Publisher{
		client:   client,
		endpoint: endpoint,
	}
}

// PublishBatch sends all events in a single request
func (p *Publisher) PublishBatch(ctx context.Context, events []model.RevisionEvent) error {
	logger := log.FromContext(ctx).WithName("webhook")

	logger.V(1).Info("Posting revision events to webhook",
		"endpoint", p.endpoint,
		"eventCount", len(events),
	)

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(Payload{Events: events}).
		SetError(&errorResponse).
		Post(p.endpoint)

	if err != nil {
		return fmt.Errorf("failed to post events to webhook: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Webhook returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"endpoint", p.endpoint,
		)
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Revision events delivered to webhook",
		"endpoint", p.endpoint,
		"eventCount", len(events),
		"statusCode", resp.StatusCode(),
	)

	return nil
}

// Close releases the underlying client
func (p *Publisher) Close() error {
	return p.client.Close()
}
