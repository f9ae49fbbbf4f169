// Package gitcl exposes change-list metadata for the current checkout: the
// Gerrit issue number, the latest try builds for a patchset, and try-job
// triggering. Issue lookup and triggering wrap the `git cl` binary; build
// lookups go straight to Buildbucket.
package gitcl

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"

	"github.com/crtools/trystat/buildbucket"
)

var issuePattern = regexp.MustCompile(`Issue number: (\d+)`)

// Fields requested when looking up latest try builds. Callers needing step
// and log detail must re-fetch with a fuller mask.
var tryJobFields = []string{"id", "number", "builder.builder", "builder.bucket", "status"}

// CLRevisionID names a patchset of a change for log output.
type CLRevisionID struct {
	Issue    int
	Patchset int
}

func (c CLRevisionID) String() string {
	if c.Patchset == 0 {
		return fmt.Sprintf("crrev.com/c/%d", c.Issue)
	}
	return fmt.Sprintf("crrev.com/c/%d/%d", c.Issue, c.Patchset)
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Options configures a Client. Zero values select chromium defaults.
type Options struct {
	Runner     CommandRunner
	Project    string
	Bucket     string
	GerritHost string
}

// Client reads and mutates try-job state for the current change list.
type Client struct {
	bb         buildbucket.Caller
	runner     CommandRunner
	project    string
	bucket     string
	gerritHost string
}

func New(bb buildbucket.Caller, opts Options) *Client {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Project == "" {
		opts.Project = "chromium"
	}
	if opts.Bucket == "" {
		opts.Bucket = "try"
	}
	if opts.GerritHost == "" {
		opts.GerritHost = "chromium-review.googlesource.com"
	}
	return &Client{
		bb:         bb,
		runner:     opts.Runner,
		project:    opts.Project,
		bucket:     opts.Bucket,
		gerritHost: opts.GerritHost,
	}
}

// IssueNumber returns the issue associated with the current branch, or zero
// when the branch has no issue attached.
func (c *Client) IssueNumber(ctx context.Context) (int, error) {
	out, err := c.runner.Output(ctx, "git", "cl", "issue")
	if err != nil {
		return 0, fmt.Errorf("read issue number: %w", err)
	}
	match := issuePattern.FindSubmatch(out)
	if match == nil {
		return 0, nil
	}
	issue, err := strconv.Atoi(string(match[1]))
	if err != nil {
		return 0, nil
	}
	return issue, nil
}

// LatestTryJobs returns the newest try build per builder for the given issue
// and patchset. Builders with no build at that revision have no entry. A zero
// patchset selects the latest patchset.
func (c *Client) LatestTryJobs(ctx context.Context, issue, patchset int, builders []string) (buildbucket.BuildStatuses, error) {
	names := append([]string(nil), builders...)
	sort.Strings(names)

	batch := buildbucket.NewBatch(c.bb)
	for _, builder := range names {
		batch.AddSearchBuilds(buildbucket.BuildPredicate{
			Builder: &buildbucket.BuilderID{
				Project: c.project,
				Bucket:  c.bucket,
				Builder: builder,
			},
			GerritChanges: []buildbucket.GerritChange{{
				Host:     c.gerritHost,
				Change:   issue,
				Patchset: patchset,
			}},
		}, tryJobFields, 1)
	}

	raws, err := batch.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("search try builds: %w", err)
	}

	statuses := buildbucket.BuildStatuses{}
	for _, raw := range raws {
		build := buildbucket.Build{
			Builder: raw.Builder.Builder,
			Number:  raw.Number,
			ID:      raw.ID.String(),
			Bucket:  raw.Builder.Bucket,
		}
		statuses[build] = buildbucket.StatusFromBuildbucket(raw.Status)
	}
	return statuses, nil
}

// TriggerTryJobs schedules one new try build per builder in a single `git cl
// try` invocation against the current change list.
func (c *Client) TriggerTryJobs(ctx context.Context, builders []string) error {
	if len(builders) == 0 {
		return nil
	}
	names := append([]string(nil), builders...)
	sort.Strings(names)

	args := []string{"cl", "try", "-B", fmt.Sprintf("luci.%s.%s", c.project, c.bucket)}
	for _, builder := range names {
		args = append(args, "-b", builder)
	}
	if _, err := c.runner.Output(ctx, "git", args...); err != nil {
		return fmt.Errorf("trigger try jobs: %w", err)
	}
	return nil
}
