package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/crtools/trystat/artifacts"
	"github.com/crtools/trystat/buildbucket"
	"github.com/crtools/trystat/gitcl"
	"github.com/crtools/trystat/internal/config"
	"github.com/crtools/trystat/internal/observability"
	"github.com/crtools/trystat/internal/web"
	"github.com/crtools/trystat/resolver"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: trystat status [flags]")
}

// multiFlag collects repeatable string flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func runStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	var builderSpecs multiFlag
	flags.Var(&builderSpecs, "builder", "Builder to resolve, as [bucket/]name[:number]; repeatable")
	group := flags.String("group", "", "Configured builder group to resolve")
	configPath := flags.String("config", "", "Path to trystat.yaml")
	patchset := flags.Int("patchset", 0, "Patchset to fetch try results from (0 = latest)")
	trigger := flags.Bool("trigger", false, "Trigger try jobs for builders with no build")
	ioWorkers := flags.Int("io-workers", 4, "Concurrent summary fetches (1 = sequential)")
	bbHost := flags.String("bb-host", "", "Buildbucket host override")
	s3Bucket := flags.String("s3-bucket", "", "S3 bucket for interruption evidence")
	s3Prefix := flags.String("s3-prefix", "", "S3 key prefix for interruption evidence")
	s3Region := flags.String("s3-region", "", "S3 region for interruption evidence")
	_ = flags.Parse(args)

	logger := observability.NewLogger("trystat")
	ctx := context.Background()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "event", "config_load_failed", "error", err)
			return 1
		}
		cfg = loaded
	}
	if *bbHost != "" {
		cfg.BuildbucketHost = *bbHost
	}

	builds, err := requestedBuilds(cfg, builderSpecs, *group)
	if err != nil {
		logger.Error("bad builder request", "event", "bad_builder_request", "error", err)
		return 1
	}
	if len(builds) == 0 {
		fmt.Fprintln(os.Stderr, "No builders requested; pass -builder or -group.")
		return 1
	}

	bb := buildbucket.NewClient(cfg.BuildbucketHost)
	cl := gitcl.New(bb, gitcl.Options{
		Project:    cfg.Project,
		GerritHost: cfg.GerritHost,
	})

	opts := resolver.Options{
		CanTriggerJobs: *trigger,
		Project:        cfg.Project,
		Logger:         logger,
		Metrics:        observability.NewMetrics(nil),
	}
	if *ioWorkers > 1 {
		opts.Pool = resolver.BoundedPool{Workers: *ioWorkers}
	}
	if *s3Bucket != "" {
		sink, err := artifacts.NewS3Sink(ctx, artifacts.S3Config{
			Bucket: *s3Bucket,
			Prefix: *s3Prefix,
			Region: *s3Region,
		})
		if err != nil {
			logger.Error("s3 sink unavailable", "event", "s3_sink_failed", "error", err)
			return 1
		}
		opts.Evidence = sink
	}

	res := resolver.New(bb, cl, web.NewHTTPFetcher(), opts)
	if _, err := res.ResolveBuilds(ctx, builds, *patchset); err != nil {
		var unresolved *resolver.UnresolvedBuildError
		if errors.As(err, &unresolved) {
			fmt.Fprintln(os.Stderr, unresolved.Reason)
			return 2
		}
		logger.Error("resolution failed", "event", "resolution_failed", "error", err)
		return 1
	}
	return 0
}

func requestedBuilds(cfg config.Config, specs []string, group string) ([]buildbucket.Build, error) {
	var builds []buildbucket.Build
	for _, spec := range specs {
		build, err := parseBuilderSpec(spec)
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	if group != "" {
		refs, err := cfg.ExpandGroup(group)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			builds = append(builds, buildbucket.Build{Builder: ref.Builder, Bucket: ref.Bucket})
		}
	}
	return builds, nil
}

// parseBuilderSpec parses "[bucket/]name[:number]". The bucket defaults to
// "try"; a missing number means it should be inferred.
func parseBuilderSpec(spec string) (buildbucket.Build, error) {
	build := buildbucket.Build{Bucket: "try"}
	rest := spec
	if bucket, name, ok := strings.Cut(rest, "/"); ok {
		build.Bucket = bucket
		rest = name
	}
	if name, number, ok := strings.Cut(rest, ":"); ok {
		n, err := strconv.Atoi(number)
		if err != nil || n <= 0 {
			return buildbucket.Build{}, fmt.Errorf("bad build number in %q", spec)
		}
		build.Number = n
		rest = name
	}
	if rest == "" {
		return buildbucket.Build{}, fmt.Errorf("empty builder name in %q", spec)
	}
	build.Builder = rest
	return build, nil
}
