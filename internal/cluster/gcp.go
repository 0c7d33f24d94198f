package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	gcpMetadataBase   = "http://metadata.google.internal/computeMetadata/v1"
	gcpMetadataFlavor = "Google"

	gcpClusterNamePath = "/instance/attributes/cluster-name"
	gcpProjectIDPath   = "/project/project-id"
)

// GCPProvider reads the GKE cluster name from the GCP metadata server
type GCPProvider struct {
	client      *http.Client
	metadataURL string
}

// NewGCPProvider creates a GCP provider querying metadataURL
func NewGCPProvider(client *http.Client, metadataURL string) *GCPProvider {
	return &GCPProvider{
		client:      client,
		metadataURL: metadataURL,
	}
}

func (p *GCPProvider) Name() string {
	return "gcp"
}

// Locate returns ErrNotInCluster when the metadata server is unreachable or
// does not answer as GCP, e.g. outside GKE
func (p *GCPProvider) Locate(ctx context.Context) (*Location, error) {
	clusterName, found, err := p.get(ctx, gcpClusterNamePath)
	if err != nil || !found {
		return nil, ErrNotInCluster
	}

	projectID, _, err := p.get(ctx, gcpProjectIDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get project-id: %w", err)
	}

	return &Location{
		Provider:    p.Name(),
		ClusterName: clusterName,
		ProjectID:   projectID,
	}, nil
}

// get returns found=false when the server is not a GCP metadata server or the key is missing
func (p *GCPProvider) get(ctx context.Context, path string) (value string, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadataURL+path, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Metadata-Flavor", gcpMetadataFlavor)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.Header.Get("Metadata-Flavor") != gcpMetadataFlavor || resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("metadata request %s failed with status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(string(body)), true, nil
}
