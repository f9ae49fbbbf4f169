package resolver

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/crtools/trystat/buildbucket"
	"github.com/crtools/trystat/internal/observability"
)

// runWebTestsPattern matches the step that runs web tests against the
// patched checkout, tolerating shard and retry suffixes.
var runWebTestsPattern = regexp.MustCompile(
	`^[\w_-]*(webdriver|blink_(web|wpt))_tests.*\(with patch\)[^|]*$`)

// swarmingSummaryLog is the machine-readable per-shard summary attached to a
// test step.
const swarmingSummaryLog = "chromium_swarming.summary"

// harnessErrorCodes are run_web_tests.py exit codes that mean the harness
// was interrupted rather than that tests failed: SIGINT, early exit from
// excessive failures, missing system dependencies, no tests found, an
// unexpected harness error, and no devices available.
var harnessErrorCodes = map[int]bool{
	130: true,
	251: true,
	252: true,
	253: true,
	254: true,
	255: true,
}

type swarmingSummary struct {
	Shards []*swarmingShard `json:"shards"`
}

type swarmingShard struct {
	// Swarming reports exit codes as JSON strings.
	ExitCode json.Number `json:"exit_code"`
}

// statusIfInterrupted maps failures unrelated to the tests themselves to an
// INFRA_FAILURE status.
//
// Buildbucket's FAILURE covers both genuine test failures and opaque compile
// or result-merge failures. The recipe-reported failure_type output property
// separates the two. Shard-level timeouts and early exits are likewise opaque
// to Buildbucket but recoverable from run_web_tests.py exit code conventions
// in the swarming summary.
func (r *Resolver) statusIfInterrupted(ctx context.Context, raw buildbucket.RawBuild) buildbucket.Status {
	if prop := raw.Property("failure_type"); prop != nil {
		if _, isNull := prop.GetKind().(*structpb.Value_NullValue); !isNull && prop.GetStringValue() != "TEST_FAILURE" {
			return buildbucket.StatusFromBuildbucket("INFRA_FAILURE")
		}
	}
	for _, step := range raw.Steps {
		if !runWebTestsPattern.MatchString(step.Name) {
			continue
		}
		summary := r.fetchSwarmingSummary(ctx, step)
		if summary == nil {
			continue
		}
		for _, shard := range summary.Shards {
			if shardInterrupted(shard) {
				r.uploadInterruptionEvidence(ctx, raw, summary)
				return buildbucket.StatusFromBuildbucket("INFRA_FAILURE")
			}
		}
	}
	return buildbucket.StatusFromBuildbucket(raw.Status)
}

// fetchSwarmingSummary retrieves the shard summary for a test step. Any
// fetch or decode failure degrades to "no summary": classification must not
// fail because optional data is unavailable.
func (r *Resolver) fetchSwarmingSummary(ctx context.Context, step buildbucket.Step) *swarmingSummary {
	for _, log := range step.Logs {
		if log.Name != swarmingSummaryLog {
			continue
		}
		var summary swarmingSummary
		if err := r.web.GetJSON(ctx, log.ViewURL+"?format=raw", &summary); err != nil {
			r.logger.Warn("swarming summary unavailable",
				"event", "summary_fetch_failed", "step", step.Name, "error", err)
			r.metrics.IncSummaryFetch("error")
			return nil
		}
		r.metrics.IncSummaryFetch("ok")
		return &summary
	}
	return nil
}

func (r *Resolver) uploadInterruptionEvidence(ctx context.Context, raw buildbucket.RawBuild, summary *swarmingSummary) {
	if r.evidence == nil {
		return
	}
	logger := observability.WithBuilder(r.logger, raw.Builder.Builder)
	uri, err := r.evidence.UploadInterruption(ctx, raw.Builder.Builder, raw.Number, summary)
	if err != nil {
		logger.Warn("interruption evidence upload failed",
			"event", "evidence_upload_failed", "error", err)
		return
	}
	logger.Info("interruption evidence uploaded",
		"event", "evidence_uploaded", "uri", uri)
}

func shardInterrupted(shard *swarmingShard) bool {
	if shard == nil {
		return false
	}
	code, err := strconv.Atoi(shard.ExitCode.String())
	if err != nil {
		return false
	}
	return harnessErrorCodes[code]
}
