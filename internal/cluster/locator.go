package cluster

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Location identifies the cluster the process runs in
type Location struct {
	Provider    string
	ClusterName string
	ProjectID   string
}

// ID is a stable identifier used as the watcher source, e.g. gcp/my-project/prod
func (l Location) ID() string {
	if l.ProjectID == "" {
		return l.Provider + "/" + l.ClusterName
	}
	return l.Provider + "/" + l.ProjectID + "/" + l.ClusterName
}

// ErrNotInCluster is returned when no provider recognises the environment
var ErrNotInCluster = errors.New("not running in a known cluster")

// Provider looks up the current cluster from a cloud metadata service
type Provider interface {
	Name() string
	Locate(ctx context.Context) (*Location, error)
}

// Config holds configuration for the locator
type Config struct {
	// Timeout bounds every metadata request
	Timeout   time.Duration
	EnableGCP bool
}

// DefaultConfig returns the default locator configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   2 * time.Second,
		EnableGCP: true,
	}
}

// Locator asks each provider in turn for the current cluster
type Locator struct {
	providers []Provider
}

// NewLocator creates a locator with the providers enabled in cfg
func NewLocator(cfg Config) *Locator {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var providers []Provider
	if cfg.EnableGCP {
		providers = append(providers, NewGCPProvider(httpClient, gcpMetadataBase))
	}
	return &Locator{providers: providers}
}

// Locate returns the first location a provider reports
func (l *Locator) Locate(ctx context.Context) (*Location, error) {
	logger := log.FromContext(ctx).WithName("cluster-locator")

	for _, provider := range l.providers {
		loc, err := provider.Locate(ctx)
		if errors.Is(err, ErrNotInCluster) {
			continue
		}
		if err != nil {
			logger.V(1).Info("Cluster lookup failed", "provider", provider.Name(), "error", err.Error())
			continue
		}
		return loc, nil
	}
	return nil, ErrNotInCluster
}
