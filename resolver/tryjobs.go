package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/crtools/trystat/buildbucket"
	"github.com/crtools/trystat/gitcl"
	"github.com/crtools/trystat/internal/observability"
)

// fetchOrTriggerTryJobs resolves try builders without build numbers against
// the current change list. Builders that already have a build at the
// requested patchset keep its status; the rest are either triggered in one
// call (and marked TRIGGERED) or marked MISSING when triggering is disabled.
//
// An UnresolvedBuildError is returned when the current branch has no issue
// number, or when no builds were found at all and triggering is disabled.
// A partial result with some builders absent is not an error; those builders
// stay visible as MISSING entries in the result map.
func (r *Resolver) fetchOrTriggerTryJobs(ctx context.Context, builders []string, patchset int) (buildbucket.BuildStatuses, error) {
	issue, err := r.cl.IssueNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve issue number: %w", err)
	}
	if issue == 0 {
		return nil, &UnresolvedBuildError{Reason: "No issue number for current branch."}
	}

	cl := gitcl.CLRevisionID{Issue: issue, Patchset: patchset}
	logger := observability.WithIssue(r.logger, issue)
	logger.Info(fmt.Sprintf("Fetching status for %s from %s.", pluralize("build", len(builders)), cl),
		"event", "fetch_try_jobs", "patchset", patchset)

	statuses, err := r.cl.LatestTryJobs(ctx, issue, patchset, builders)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 && !r.canTriggerJobs {
		return nil, &UnresolvedBuildError{
			Reason: "Aborted: no try jobs found and triggering is disabled.",
		}
	}

	found := map[string]bool{}
	for build := range statuses {
		found[build.Builder] = true
	}
	var missing []string
	for _, builder := range builders {
		if !found[builder] {
			missing = append(missing, builder)
		}
	}
	sort.Strings(missing)

	placeholder := buildbucket.Missing
	if r.canTriggerJobs && len(missing) > 0 {
		if err := r.cl.TriggerTryJobs(ctx, missing); err != nil {
			return nil, err
		}
		logger.Info(fmt.Sprintf("Triggered %s: %s.", pluralize("try job", len(missing)), strings.Join(missing, ", ")),
			"event", "try_jobs_triggered", "count", len(missing))
		for _, builder := range missing {
			r.metrics.IncTriggered(builder)
		}
		placeholder = buildbucket.Triggered
	}
	for _, builder := range missing {
		statuses[buildbucket.Build{Builder: builder, Bucket: "try"}] = placeholder
	}
	return statuses, nil
}
