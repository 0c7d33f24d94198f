package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apptrail-sh/revisions/internal/filter"
	"github.com/apptrail-sh/revisions/internal/model"
	"github.com/apptrail-sh/revisions/internal/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/flowcontrol"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RevisionLister is the part of the revision client the poller needs
type RevisionLister interface {
	ListRevisions(ctx context.Context, clusterName, deploymentName string, query schema.ListQuery) (*schema.List[schema.DeploymentRevision], error)
}

// Target is a deployment whose revisions are watched
type Target struct {
	Cluster    string
	Deployment string
}

func (t Target) String() string {
	return t.Cluster + "/" + t.Deployment
}

// ParseTarget parses a "cluster/deployment" string
func ParseTarget(s string) (Target, error) {
	cluster, deployment, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || cluster == "" || deployment == "" || strings.Contains(deployment, "/") {
		return Target{}, fmt.Errorf("invalid target %q: expected cluster/deployment", s)
	}
	return Target{Cluster: cluster, Deployment: deployment}, nil
}

// ParseTargets parses a list of "cluster/deployment" strings
func ParseTargets(items []string) ([]Target, error) {
	targets := make([]Target, 0, len(items))
	for _, item := range items {
		target, err := ParseTarget(item)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// Config holds configuration for the revision poller
type Config struct {
	Interval     time.Duration
	PageSize     uint
	QPS          float32
	Burst        int
	Targets      []Target
	WatcherID    string
	AgentVersion string
}

// DefaultConfig returns the default poller configuration
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		PageSize: 50,
		QPS:      5,
		Burst:    10,
	}
}

// Poller periodically lists the revisions of every target and emits an event
// for each revision it has not seen before. The first successful poll of a
// target only records what exists. Only the newest PageSize revisions are
// inspected on each poll.
type Poller struct {
	config  Config
	lister  RevisionLister
	filter  *filter.RevisionFilter
	limiter flowcontrol.RateLimiter
	events  chan<- model.RevisionEvent

	// seen holds the UIDs of the last page per target; a target is primed
	// once it has an entry
	seen map[Target]map[string]struct{}
}

// NewPoller creates a new revision poller
func NewPoller(
	config Config,
	lister RevisionLister,
	revisionFilter *filter.RevisionFilter,
	events chan<- model.RevisionEvent,
) *Poller {
	if revisionFilter == nil {
		revisionFilter = filter.NewRevisionFilter(filter.RevisionFilterConfig{})
	}
	if config.PageSize == 0 {
		config.PageSize = DefaultConfig().PageSize
	}

	var limiter flowcontrol.RateLimiter
	if config.QPS > 0 {
		limiter = flowcontrol.NewTokenBucketRateLimiter(config.QPS, max(config.Burst, 1))
	} else {
		limiter = flowcontrol.NewFakeAlwaysRateLimiter()
	}

	return &Poller{
		config:  config,
		lister:  lister,
		filter:  revisionFilter,
		limiter: limiter,
		events:  events,
		seen:    make(map[Target]map[string]struct{}),
	}
}

// Run polls every Interval until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("revision-poller")
	ctx = log.IntoContext(ctx, logger)

	logger.Info("Starting revision poller",
		"interval", p.config.Interval,
		"pageSize", p.config.PageSize,
		"targets", len(p.config.Targets),
	)

	wait.UntilWithContext(ctx, p.PollOnce, p.config.Interval)

	logger.Info("Revision poller stopped")
}

// PollOnce runs a single polling round over all targets
func (p *Poller) PollOnce(ctx context.Context) {
	logger := log.FromContext(ctx)

	for _, target := range p.config.Targets {
		if !p.filter.ShouldWatchTarget(target.Cluster, target.Deployment) {
			logger.V(1).Info("Skipping filtered target", "target", target.String())
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		emitted, err := p.pollTarget(ctx, target)
		if err != nil {
			logger.Error(err, "Failed to poll deployment revisions", "target", target.String())
			continue
		}
		if emitted > 0 {
			logger.Info("Found new deployment revisions", "target", target.String(), "count", emitted)
		}
	}
}

func (p *Poller) pollTarget(ctx context.Context, target Target) (int, error) {
	list, err := p.lister.ListRevisions(ctx, target.Cluster, target.Deployment, schema.NewListQuery(0, p.config.PageSize))
	if err != nil {
		return 0, err
	}

	previous, primed := p.seen[target]
	current := make(map[string]struct{}, len(list.Items))
	for _, rev := range list.Items {
		current[rev.Uid] = struct{}{}
	}
	p.seen[target] = current

	if !primed {
		log.FromContext(ctx).V(1).Info("Primed target", "target", target.String(), "revisions", len(current))
		return 0, nil
	}

	emitted := 0
	// Items arrive newest first; emit oldest first so consumers see them in order
	for i := len(list.Items) - 1; i >= 0; i-- {
		rev := list.Items[i]
		if _, ok := previous[rev.Uid]; ok {
			continue
		}
		if !p.filter.ShouldPublish(&rev) {
			continue
		}

		event := model.NewRevisionEvent(rev, target.Cluster, target.Deployment, p.config.WatcherID, p.config.AgentVersion)
		select {
		case p.events <- event:
			emitted++
		case <-ctx.Done():
			return emitted, ctx.Err()
		}
	}
	return emitted, nil
}
