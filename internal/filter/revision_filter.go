package filter

import (
	"path/filepath"
	"strings"

	"github.com/apptrail-sh/revisions/internal/schema"
)

// RevisionFilterConfig holds the configuration for revision filtering
type RevisionFilterConfig struct {
	// Target filtering, patterns match "cluster/deployment"
	IncludeTargets []string // Glob patterns for targets to watch (e.g., "prod-*/*")
	ExcludeTargets []string // Glob patterns for targets to skip (e.g., "*/canary-*")

	// Label filtering
	RequireLabels []string // Label keys that must be present (e.g., "team")
	ExcludeLabels []string // Label key=value pairs that cause exclusion (e.g., "ci=true")

	// Statuses to publish, empty means all
	Statuses []string
}

// RevisionFilter implements target, label and status based revision filtering
type RevisionFilter struct {
	config RevisionFilterConfig
}

// NewRevisionFilter creates a new revision filter
func NewRevisionFilter(config RevisionFilterConfig) *RevisionFilter {
	return &RevisionFilter{config: config}
}

// ShouldWatchTarget returns true if the cluster/deployment pair should be polled
func (f *RevisionFilter) ShouldWatchTarget(cluster, deployment string) bool {
	target := cluster + "/" + deployment

	// Check exclusions first
	for _, pattern := range f.config.ExcludeTargets {
		if matchGlob(pattern, target) {
			return false
		}
	}

	if len(f.config.IncludeTargets) == 0 {
		return true
	}

	for _, pattern := range f.config.IncludeTargets {
		if matchGlob(pattern, target) {
			return true
		}
	}

	return false
}

// ShouldPublish returns true if an event should be emitted for the revision
func (f *RevisionFilter) ShouldPublish(rev *schema.DeploymentRevision) bool {
	if len(f.config.Statuses) > 0 && !containsFold(f.config.Statuses, string(rev.Status)) {
		return false
	}

	labels := rev.LabelMap()

	for _, requiredKey := range f.config.RequireLabels {
		if _, exists := labels[requiredKey]; !exists {
			return false
		}
	}

	for _, exclusion := range f.config.ExcludeLabels {
		key, value, hasValue := parseKeyValue(exclusion)
		if labelValue, exists := labels[key]; exists {
			if !hasValue || labelValue == value {
				return false
			}
		}
	}

	return true
}

// matchGlob performs a simple glob match (supports * wildcard within a segment)
func matchGlob(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}

// parseKeyValue parses a "key=value" or "key" string. "key=" matches an
// empty value only.
func parseKeyValue(s string) (key, value string, hasValue bool) {
	return strings.Cut(s, "=")
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
