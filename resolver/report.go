package resolver

import (
	"fmt"
	"math"
	"sort"

	"github.com/crtools/trystat/buildbucket"
)

// logBuilds writes the status map as a tabular summary, finished builds
// first, then scheduled or started ones, preceded by a warning block for
// builds whose results are known to be incomplete.
func (r *Resolver) logBuilds(statuses buildbucket.BuildStatuses) {
	r.warnAboutIncompleteResults(statuses)

	finished := map[buildbucket.Build]string{}
	for build, status := range statuses {
		if status.Code == buildbucket.StatusCompleted {
			result := string(status.Result)
			if result == "" {
				result = "--"
			}
			finished[build] = result
		}
	}
	if len(finished) == len(statuses) {
		r.logger.Info("All builds finished.")
		return
	}

	if len(finished) > 0 {
		r.logger.Info("Finished builds:")
		r.logBuildTable(finished)
	} else {
		r.logger.Info("No finished builds.")
	}

	unfinished := map[buildbucket.Build]string{}
	for build, status := range statuses {
		if _, done := finished[build]; done || status.Code == buildbucket.StatusMissing {
			continue
		}
		unfinished[build] = string(status.Code)
	}
	if len(unfinished) > 0 {
		r.logger.Info("Scheduled or started builds:")
		r.logBuildTable(unfinished)
	}
}

// incompleteResults reports builds whose result sets cannot be trusted:
// infrastructure failures (including reclassified interruptions) and
// cancellations.
func incompleteResults(statuses buildbucket.BuildStatuses) []buildbucket.Build {
	var builds []buildbucket.Build
	for build, status := range statuses {
		if status.Code == buildbucket.StatusInfraFailure || status.Code == buildbucket.StatusCanceled {
			builds = append(builds, build)
		}
	}
	sortBuilds(builds)
	return builds
}

func (r *Resolver) warnAboutIncompleteResults(statuses buildbucket.BuildStatuses) {
	incomplete := incompleteResults(statuses)
	if len(incomplete) == 0 {
		return
	}
	r.logger.Warn("Some builds have incomplete results:")
	for _, build := range incomplete {
		r.logger.Warn(fmt.Sprintf("  %q build %s", build.Builder, formatNumber(build.Number)))
	}
	r.logger.Warn("Examples of incomplete results include:")
	r.logger.Warn("  * Shard terminated the harness after timing out.")
	r.logger.Warn("  * Harness exited early due to excessive unexpected failures.")
	r.logger.Warn("  * Build failed on a non-test step.")
	r.logger.Warn("Please consider retrying the failed builders or giving the builders more shards.")
	r.logger.Warn("See https://chromium.googlesource.com/chromium/src/+/HEAD/docs/testing/web_test_expectations.md#handle-bot-timeouts")
}

func (r *Resolver) logBuildTable(rows map[buildbucket.Build]string) {
	builds := make([]buildbucket.Build, 0, len(rows))
	nameColumnWidth := 20
	for build := range rows {
		builds = append(builds, build)
		// Clamp to a minimum width to keep the BUILDER and NUMBER
		// columns visually separate.
		if len(build.Builder) > nameColumnWidth {
			nameColumnWidth = len(build.Builder)
		}
	}
	sortBuilds(builds)

	template := fmt.Sprintf("  %%-%ds %%-7s %%-9s %%-6s", nameColumnWidth)
	r.logger.Info(fmt.Sprintf(template, "BUILDER", "NUMBER", "STATUS", "BUCKET"))
	for _, build := range builds {
		r.logger.Info(fmt.Sprintf(template, build.Builder, formatNumber(build.Number), rows[build], build.Bucket))
	}
}

// sortBuilds orders by builder name, then ascending build number with
// unnumbered builds last.
func sortBuilds(builds []buildbucket.Build) {
	sort.Slice(builds, func(i, j int) bool {
		if builds[i].Builder != builds[j].Builder {
			return builds[i].Builder < builds[j].Builder
		}
		return sortNumber(builds[i].Number) < sortNumber(builds[j].Number)
	})
}

func sortNumber(number int) int {
	if number == 0 {
		return math.MaxInt
	}
	return number
}

func formatNumber(number int) string {
	if number == 0 {
		return "--"
	}
	return fmt.Sprintf("%d", number)
}

func pluralize(noun string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, noun)
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
