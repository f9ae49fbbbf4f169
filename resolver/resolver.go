// Package resolver maps requested builds onto their current statuses. It
// infers missing build numbers for try builders from the current change list,
// optionally triggers jobs that do not exist yet, and reclassifies failures
// caused by harness or shard interruptions as infrastructure failures.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crtools/trystat/buildbucket"
	"github.com/crtools/trystat/internal/observability"
	"github.com/crtools/trystat/internal/web"
)

// Build fields required by the interruption classifier. Omitting an entry
// degrades classification silently, so keep this list in sync with
// statusIfInterrupted.
var buildFields = []string{
	"id",
	"number",
	"builder.builder",
	"builder.bucket",
	"status",
	"output.properties",
	"steps.*.name",
	"steps.*.logs.*.name",
	"steps.*.logs.*.viewUrl",
}

// ChangeList reads and mutates try-job state for the change under review.
type ChangeList interface {
	// IssueNumber returns the issue for the current branch, or zero when
	// the branch has none.
	IssueNumber(ctx context.Context) (int, error)
	// LatestTryJobs returns the newest try build per builder at the given
	// issue and patchset; builders with no build have no entry.
	LatestTryJobs(ctx context.Context, issue, patchset int, builders []string) (buildbucket.BuildStatuses, error)
	// TriggerTryJobs schedules one new build per builder in one call.
	TriggerTryJobs(ctx context.Context, builders []string) error
}

// EvidenceSink receives the shard summary of builds reclassified as
// infrastructure failures. Upload failures are logged, never fatal.
type EvidenceSink interface {
	UploadInterruption(ctx context.Context, builder string, number int, summary any) (string, error)
}

// Options configures optional resolver collaborators.
type Options struct {
	// Pool runs classification tasks; nil means sequential execution.
	Pool Pool
	// CanTriggerJobs permits scheduling builds for try builders that have
	// none at the current revision.
	CanTriggerJobs bool
	// Project scopes builder predicates; defaults to "chromium".
	Project  string
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Evidence EvidenceSink
}

// Resolver turns a heterogeneous collection of requested builds into a
// complete status map. It holds no per-call state; a fresh query batch is
// created for every resolution pass.
type Resolver struct {
	bb             buildbucket.Caller
	cl             ChangeList
	web            web.Fetcher
	pool           Pool
	canTriggerJobs bool
	project        string
	logger         *slog.Logger
	metrics        *observability.Metrics
	evidence       EvidenceSink
}

func New(bb buildbucket.Caller, cl ChangeList, fetcher web.Fetcher, opts Options) *Resolver {
	if opts.Pool == nil {
		opts.Pool = sequentialPool{}
	}
	if opts.Project == "" {
		opts.Project = "chromium"
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger("resolver")
	}
	return &Resolver{
		bb:             bb,
		cl:             cl,
		web:            fetcher,
		pool:           opts.Pool,
		canTriggerJobs: opts.CanTriggerJobs,
		project:        opts.Project,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		evidence:       opts.Evidence,
	}
}

// ResolveBuilds resolves builders, some with build numbers, into statuses.
//
// Builds without a number are inferred: try builders resolve to the build for
// the requested patchset of the current change list (triggering one when
// allowed and none exists), CI builders resolve to the latest failing build.
// The summary table is always logged for a non-empty result, even when the
// call then fails because triggered builds are still pending.
func (r *Resolver) ResolveBuilds(ctx context.Context, builds []buildbucket.Build, patchset int) (buildbucket.BuildStatuses, error) {
	batch := buildbucket.NewBatch(r.bb)
	tryBuildersToInfer := map[string]bool{}
	for _, build := range builds {
		switch {
		case build.Number != 0 || build.ID != "":
			batch.AddGetBuild(build, r.project, buildFields)
		case build.Bucket == "try":
			tryBuildersToInfer[build.Builder] = true
		default:
			batch.AddSearchBuilds(buildbucket.BuildPredicate{
				Builder: &buildbucket.BuilderID{
					Project: r.project,
					Bucket:  build.Bucket,
					Builder: build.Builder,
				},
				Status: "FAILURE",
			}, buildFields, 1)
		}
	}

	statuses := buildbucket.BuildStatuses{}
	// Handle implied try jobs first, since there are more failure modes.
	if len(tryBuildersToInfer) > 0 {
		tryStatuses, err := r.fetchOrTriggerTryJobs(ctx, setToSlice(tryBuildersToInfer), patchset)
		if err != nil {
			return nil, err
		}
		for build, status := range tryStatuses {
			statuses[build] = status
			// Re-request completed try builds: the inference query used a
			// light field mask, and classification needs step and log data.
			if build.Number != 0 && status.Code == buildbucket.StatusCompleted {
				batch.AddGetBuild(build, r.project, buildFields)
			}
		}
	}

	raws, err := batch.Execute(ctx)
	if err != nil {
		r.metrics.IncBatch("error")
		return nil, fmt.Errorf("execute buildbucket batch: %w", err)
	}
	if batch.Len() > 0 {
		r.metrics.IncBatch("ok")
	}

	for build, status := range r.buildStatusesFromResponses(ctx, raws) {
		statuses[build] = status
	}
	for _, status := range statuses {
		r.metrics.IncBuildResolved(string(status.Code))
	}

	if len(statuses) > 0 {
		r.logBuilds(statuses)
	}
	for _, status := range statuses {
		if status == buildbucket.Triggered {
			return statuses, &UnresolvedBuildError{
				Reason: "Once all pending try jobs have finished, please re-run the tool to fetch new results.",
			}
		}
	}
	return statuses, nil
}

// buildStatusesFromResponses classifies every raw record, fanning the work
// out across the pool. Each record is classified independently; the pool is
// a throughput optimization only.
func (r *Resolver) buildStatusesFromResponses(ctx context.Context, raws []buildbucket.RawBuild) buildbucket.BuildStatuses {
	classified := make([]buildbucket.Status, len(raws))
	r.pool.Run(ctx, len(raws), func(i int) {
		classified[i] = r.statusIfInterrupted(ctx, raws[i])
	})

	statuses := buildbucket.BuildStatuses{}
	for i, raw := range raws {
		build := buildbucket.Build{
			Builder: raw.Builder.Builder,
			Number:  raw.Number,
			ID:      raw.ID.String(),
			Bucket:  raw.Builder.Bucket,
		}
		statuses[build] = classified[i]
	}
	return statuses
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}
