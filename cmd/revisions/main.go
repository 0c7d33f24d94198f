/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apptrail-sh/revisions/internal/buildinfo"
	"github.com/apptrail-sh/revisions/internal/cluster"
	"github.com/apptrail-sh/revisions/internal/revision"
	"github.com/apptrail-sh/revisions/internal/transport"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var setupLog = ctrl.Log.WithName("setup")

// config holds the global command-line configuration
type config struct {
	apiURL             string
	apiToken           string
	timeout            time.Duration
	insecureSkipVerify bool
	validate           bool
}

const usage = `Usage: revisions [global flags] <command> [flags]

Commands:
  list    list the revisions of a deployment
  get     fetch a single revision
  watch   poll deployments and publish newly created revisions

Global flags:
`

func main() {
	cfg := parseFlags()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(zapOpts)))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := ctrl.SetupSignalHandler()
	ctx = ctrl.LoggerInto(ctx, ctrl.Log)

	client, closeClient, err := newRevisionClient(cfg)
	if err != nil {
		setupLog.Error(err, "unable to create revision client")
		os.Exit(1)
	}
	defer closeClient()

	command, commandArgs := args[0], args[1:]
	switch command {
	case "list":
		err = runList(ctx, client, commandArgs)
	case "get":
		err = runGet(ctx, client, commandArgs)
	case "watch":
		err = runWatch(ctx, client, commandArgs)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		setupLog.Error(err, "command failed", "command", command)
		closeClient()
		os.Exit(1)
	}
}

var zapOpts = &zap.Options{Development: true}

func parseFlags() config {
	cfg := config{timeout: transport.DefaultConfig().Timeout}

	flag.StringVar(&cfg.apiURL, "api-url", os.Getenv("REVISIONS_API_URL"),
		"Base URL of the deployment API (e.g., https://dashboard.example.com)")
	flag.StringVar(&cfg.apiToken, "api-token", os.Getenv("REVISIONS_API_TOKEN"),
		"Bearer token sent with every request")
	flag.DurationVar(&cfg.timeout, "timeout", cfg.timeout, "Timeout of a single API request")
	flag.BoolVar(&cfg.insecureSkipVerify, "insecure-skip-verify", false,
		"Skip TLS certificate verification of the deployment API")
	flag.BoolVar(&cfg.validate, "validate", false,
		"Reject API responses that do not have the expected shape")

	zapOpts.BindFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	return cfg
}

func newRevisionClient(cfg config) (*revision.Client, func(), error) {
	if cfg.apiURL == "" {
		return nil, nil, fmt.Errorf("--api-url or REVISIONS_API_URL is required")
	}

	transportConfig := transport.DefaultConfig()
	transportConfig.BaseURL = strings.TrimSuffix(cfg.apiURL, "/")
	transportConfig.Token = cfg.apiToken
	transportConfig.Timeout = cfg.timeout
	transportConfig.InsecureSkipVerify = cfg.insecureSkipVerify

	restTransport, err := transport.NewRESTTransport(transportConfig)
	if err != nil {
		return nil, nil, err
	}

	var opts []revision.Option
	if cfg.validate {
		opts = append(opts, revision.WithValidation())
	}

	setupLog.Info("Revision client configured",
		"apiURL", transportConfig.BaseURL,
		"version", buildinfo.Version(),
		"validate", cfg.validate,
	)

	closed := false
	closeFn := func() {
		if !closed {
			closed = true
			_ = restTransport.Close()
		}
	}
	return revision.NewClient(restTransport, opts...), closeFn, nil
}

// defaultClusterName falls back to the cluster the process runs in
func defaultClusterName(ctx context.Context, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	loc, err := cluster.NewLocator(cluster.DefaultConfig()).Locate(ctx)
	if err != nil {
		return "", fmt.Errorf("--cluster is required outside a known cluster: %w", err)
	}
	setupLog.Info("Using cluster from metadata server", "cluster", loc.ClusterName, "provider", loc.Provider)
	return loc.ClusterName, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace from each element
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
