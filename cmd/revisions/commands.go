package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/apptrail-sh/revisions/internal/buildinfo"
	"github.com/apptrail-sh/revisions/internal/cluster"
	"github.com/apptrail-sh/revisions/internal/filter"
	"github.com/apptrail-sh/revisions/internal/hooks"
	"github.com/apptrail-sh/revisions/internal/hooks/pubsub"
	"github.com/apptrail-sh/revisions/internal/hooks/webhook"
	"github.com/apptrail-sh/revisions/internal/model"
	"github.com/apptrail-sh/revisions/internal/revision"
	"github.com/apptrail-sh/revisions/internal/schema"
	"github.com/apptrail-sh/revisions/internal/watch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var stdout io.Writer = os.Stdout

func runList(ctx context.Context, client *revision.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	clusterName := fs.String("cluster", "", "Cluster name (defaults to the cluster the command runs in)")
	deploymentName := fs.String("deployment", "", "Deployment name")
	start := fs.Uint("start", 0, "Offset of the first revision")
	count := fs.Uint("count", 20, "Number of revisions to return")
	search := fs.String("search", "", "Free text search")
	q := fs.String("q", "", "Query expression, e.g. 'sort:created_at-desc'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *deploymentName == "" {
		return errors.New("--deployment is required")
	}

	name, err := defaultClusterName(ctx, *clusterName)
	if err != nil {
		return err
	}

	query := schema.NewListQuery(*start, *count)
	if *search != "" {
		query.WithSearch(*search)
	}
	if *q != "" {
		query.WithQ(*q)
	}

	list, err := client.ListRevisions(ctx, name, *deploymentName, query)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func runGet(ctx context.Context, client *revision.Client, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	clusterName := fs.String("cluster", "", "Cluster name (defaults to the cluster the command runs in)")
	deploymentName := fs.String("deployment", "", "Deployment name")
	uid := fs.String("uid", "", "Revision UID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *deploymentName == "" || *uid == "" {
		return errors.New("--deployment and --uid are required")
	}

	name, err := defaultClusterName(ctx, *clusterName)
	if err != nil {
		return err
	}

	rev, err := client.FetchRevision(ctx, name, *deploymentName, *uid)
	if err != nil {
		return err
	}
	return printJSON(rev)
}

type watchFlags struct {
	targets        string
	watcherID      string
	pubsubTopic    string
	webhookURL     string
	metricsAddr    string
	includeTargets string
	excludeTargets string
	requireLabels  string
	excludeLabels  string
	statuses       string
	pollConfig     watch.Config
	batchConfig    hooks.BatchConfig
}

func parseWatchFlags(args []string) (watchFlags, error) {
	wf := watchFlags{
		pollConfig:  watch.DefaultConfig(),
		batchConfig: hooks.DefaultBatchConfig(),
	}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.StringVar(&wf.targets, "targets", os.Getenv("REVISIONS_TARGETS"),
		"Comma-separated list of cluster/deployment pairs to watch")
	fs.StringVar(&wf.watcherID, "watcher-id", os.Getenv("WATCHER_ID"),
		"Identifier reported as the event source (defaults to the cluster ID or hostname)")
	fs.DurationVar(&wf.pollConfig.Interval, "interval", wf.pollConfig.Interval, "Polling interval")
	fs.UintVar(&wf.pollConfig.PageSize, "page-size", wf.pollConfig.PageSize,
		"Number of newest revisions inspected per poll")
	fs.Func("qps", "Maximum list requests per second (0 disables throttling)", func(s string) error {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		wf.pollConfig.QPS = float32(v)
		return nil
	})
	fs.IntVar(&wf.pollConfig.Burst, "burst", wf.pollConfig.Burst, "Burst of list requests")
	fs.DurationVar(&wf.batchConfig.FlushWindow, "flush-window", wf.batchConfig.FlushWindow,
		"How long events are batched before publishing")
	fs.StringVar(&wf.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Google Cloud Pub/Sub topic path (projects/<project>/topics/<topic>)")
	fs.StringVar(&wf.webhookURL, "webhook-url", "", "URL receiving batches of revision events")
	fs.StringVar(&wf.metricsAddr, "metrics-bind-address", ":8080",
		"The address the metrics endpoint binds to, or 0 to disable it")
	fs.StringVar(&wf.includeTargets, "include-targets", "",
		"Comma-separated glob patterns of cluster/deployment pairs to poll")
	fs.StringVar(&wf.excludeTargets, "exclude-targets", "",
		"Comma-separated glob patterns of cluster/deployment pairs to skip")
	fs.StringVar(&wf.requireLabels, "require-labels", "",
		"Comma-separated list of label keys a revision must carry")
	fs.StringVar(&wf.excludeLabels, "exclude-labels", "",
		"Comma-separated list of label key or key=value entries that suppress an event (key= matches an empty value)")
	fs.StringVar(&wf.statuses, "statuses", "", "Comma-separated revision statuses to publish (default all)")

	if err := fs.Parse(args); err != nil {
		return wf, err
	}

	targets, err := watch.ParseTargets(splitAndTrim(wf.targets))
	if err != nil {
		return wf, err
	}
	if len(targets) == 0 {
		return wf, errors.New("--targets is required")
	}
	wf.pollConfig.Targets = targets
	return wf, nil
}

func (wf watchFlags) filterConfig() filter.RevisionFilterConfig {
	return filter.RevisionFilterConfig{
		IncludeTargets: splitAndTrim(wf.includeTargets),
		ExcludeTargets: splitAndTrim(wf.excludeTargets),
		RequireLabels:  splitAndTrim(wf.requireLabels),
		ExcludeLabels:  splitAndTrim(wf.excludeLabels),
		Statuses:       splitAndTrim(wf.statuses),
	}
}

func runWatch(ctx context.Context, client *revision.Client, args []string) error {
	wf, err := parseWatchFlags(args)
	if err != nil {
		return err
	}

	wf.pollConfig.WatcherID = resolveWatcherID(ctx, wf.watcherID)
	wf.pollConfig.AgentVersion = buildinfo.Version()

	publishers, stop, err := setupPublishers(ctx, wf)
	if err != nil {
		return err
	}
	defer stop()

	if wf.metricsAddr != "" && wf.metricsAddr != "0" {
		go serveMetrics(wf.metricsAddr)
	}

	events := make(chan model.RevisionEvent, 100)
	queue := hooks.NewRevisionEventQueue(events, publishers, wf.batchConfig)
	// The queue stops when events is closed, after the poller has returned
	go queue.Run(context.WithoutCancel(ctx))

	poller := watch.NewPoller(wf.pollConfig, client, filter.NewRevisionFilter(wf.filterConfig()), events)
	setupLog.Info("Watching deployment revisions",
		"targets", len(wf.pollConfig.Targets),
		"watcherID", wf.pollConfig.WatcherID,
		"publishers", len(publishers),
	)
	poller.Run(ctx)

	close(events)
	<-queue.Done()
	return nil
}

func setupPublishers(ctx context.Context, wf watchFlags) ([]hooks.RevisionEventPublisher, func(), error) {
	publishers := []hooks.RevisionEventPublisher{hooks.LogPublisher{}}
	var stops []func()
	stop := func() {
		for _, s := range stops {
			s()
		}
	}

	if wf.webhookURL != "" {
		webhookPublisher := webhook.NewPublisher(wf.webhookURL, buildinfo.UserAgent())
		publishers = append(publishers, webhookPublisher)
		stops = append(stops, func() { _ = webhookPublisher.Close() })
		setupLog.Info("Webhook publisher enabled", "endpoint", wf.webhookURL)
	}

	if wf.pubsubTopic != "" {
		pubsubPublisher, err := pubsub.NewPublisher(ctx, wf.pubsubTopic)
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("unable to create Pub/Sub publisher: %w", err)
		}
		publishers = append(publishers, pubsubPublisher)
		stops = append(stops, pubsubPublisher.Stop)
		setupLog.Info("Google Pub/Sub publisher enabled", "topic", wf.pubsubTopic)
	}

	return publishers, stop, nil
}

func resolveWatcherID(ctx context.Context, id string) string {
	if id != "" {
		return id
	}
	if loc, err := cluster.NewLocator(cluster.DefaultConfig()).Locate(ctx); err == nil {
		return loc.ID()
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	setupLog.Info("Serving metrics", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		setupLog.Error(err, "metrics server stopped")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
