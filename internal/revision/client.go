package revision

import (
	"context"
	"fmt"
	"net/url"

	"github.com/apptrail-sh/revisions/internal/schema"
	"github.com/apptrail-sh/revisions/internal/transport"
)

const revisionsPathFormat = "/api/v1/clusters/%s/deployments/%s/revisions"

// Client lists and fetches deployment revisions from the deployment API.
// It keeps no state between calls and never retries; transport errors are
// returned unchanged.
type Client struct {
	transport transport.Transport
	validate  bool
}

// Option configures a Client
type Option func(*Client)

// WithValidation makes the client check decoded bodies and return a
// *schema.ValidationError when they do not have the expected shape
func WithValidation() Option {
	return func(c *Client) {
		c.validate = true
	}
}

// NewClient creates a client sending its requests through t
func NewClient(t transport.Transport, opts ...Option) *Client {
	c := &Client{transport: t}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRevisions returns one page of revisions of a deployment.
// query is sent verbatim as URL query parameters.
func (c *Client) ListRevisions(
	ctx context.Context,
	clusterName, deploymentName string,
	query schema.ListQuery,
) (*schema.List[schema.DeploymentRevision], error) {
	values, err := query.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to encode list query: %w", err)
	}

	var list schema.List[schema.DeploymentRevision]
	if err := c.transport.Get(ctx, RevisionsPath(clusterName, deploymentName), values, &list); err != nil {
		return nil, err
	}

	if c.validate {
		if err := schema.ValidateDeploymentRevisionList(&list); err != nil {
			return nil, err
		}
	}
	return &list, nil
}

// FetchRevision returns a single revision by its UID
func (c *Client) FetchRevision(
	ctx context.Context,
	clusterName, deploymentName, revisionUID string,
) (*schema.DeploymentRevision, error) {
	var rev schema.DeploymentRevision
	if err := c.transport.Get(ctx, RevisionPath(clusterName, deploymentName, revisionUID), nil, &rev); err != nil {
		return nil, err
	}

	if c.validate {
		if err := schema.ValidateDeploymentRevision(&rev); err != nil {
			return nil, err
		}
	}
	return &rev, nil
}

// RevisionsPath is the list endpoint of a deployment's revisions.
// Every identifier is percent-encoded as a single path segment.
func RevisionsPath(clusterName, deploymentName string) string {
	return fmt.Sprintf(revisionsPathFormat, url.PathEscape(clusterName), url.PathEscape(deploymentName))
}

// RevisionPath is the endpoint of a single revision
func RevisionPath(clusterName, deploymentName, revisionUID string) string {
	return RevisionsPath(clusterName, deploymentName) + "/" + url.PathEscape(revisionUID)
}
