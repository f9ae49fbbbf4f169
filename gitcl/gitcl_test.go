package gitcl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crtools/trystat/buildbucket"
)

type fakeRunner struct {
	output []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

type fakeCaller struct {
	requests  []buildbucket.Request
	responses []buildbucket.Response
}

func (f *fakeCaller) CallBatch(ctx context.Context, reqs []buildbucket.Request) ([]buildbucket.Response, error) {
	f.requests = append(f.requests, reqs...)
	return f.responses, nil
}

func TestIssueNumberParsesGitCLOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte("Issue number: 9876543 (https://chromium-review.googlesource.com/9876543)\n")}
	client := New(nil, Options{Runner: runner})

	issue, err := client.IssueNumber(context.Background())
	if err != nil {
		t.Fatalf("issue number: %v", err)
	}
	if issue != 9876543 {
		t.Fatalf("expected 9876543, got %d", issue)
	}
}

func TestIssueNumberNoneIsZero(t *testing.T) {
	runner := &fakeRunner{output: []byte("Issue number: None (None)\n")}
	client := New(nil, Options{Runner: runner})

	issue, err := client.IssueNumber(context.Background())
	if err != nil {
		t.Fatalf("issue number: %v", err)
	}
	if issue != 0 {
		t.Fatalf("expected 0 for unset issue, got %d", issue)
	}
}

func TestIssueNumberCommandFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("not a git repository")}
	client := New(nil, Options{Runner: runner})

	if _, err := client.IssueNumber(context.Background()); err == nil {
		t.Fatal("expected error when git cl fails")
	}
}

func TestLatestTryJobsSearchesPerBuilder(t *testing.T) {
	caller := &fakeCaller{
		responses: []buildbucket.Response{
			{SearchBuilds: &buildbucket.SearchBuildsResponse{Builds: []buildbucket.RawBuild{
				{ID: "11", Number: 101, Status: "SUCCESS", Builder: buildbucket.BuilderID{Bucket: "try", Builder: "linux-rel"}},
			}}},
			{SearchBuilds: &buildbucket.SearchBuildsResponse{}},
		},
	}
	client := New(caller, Options{Runner: &fakeRunner{}})

	statuses, err := client.LatestTryJobs(context.Background(), 123456, 3, []string{"win-rel", "linux-rel"})
	if err != nil {
		t.Fatalf("latest try jobs: %v", err)
	}

	if len(caller.requests) != 2 {
		t.Fatalf("expected one search per builder, got %d", len(caller.requests))
	}
	// Searches are issued in sorted builder order.
	first := caller.requests[0].SearchBuilds
	if first.Predicate.Builder.Builder != "linux-rel" || first.Predicate.Builder.Bucket != "try" {
		t.Fatalf("unexpected first predicate: %+v", first.Predicate)
	}
	change := first.Predicate.GerritChanges[0]
	if change.Change != 123456 || change.Patchset != 3 || change.Host == "" {
		t.Fatalf("unexpected gerrit change: %+v", change)
	}
	if first.PageSize != 1 {
		t.Fatalf("expected page size 1, got %d", first.PageSize)
	}

	want := buildbucket.Build{Builder: "linux-rel", Number: 101, ID: "11", Bucket: "try"}
	status, ok := statuses[want]
	if !ok {
		t.Fatalf("expected entry for %v, got %v", want, statuses)
	}
	if status != (buildbucket.Status{Code: buildbucket.StatusCompleted, Result: buildbucket.ResultSuccess}) {
		t.Fatalf("unexpected status: %v", status)
	}
	if len(statuses) != 1 {
		t.Fatalf("builders without builds must have no entry, got %v", statuses)
	}
}

func TestTriggerTryJobsSingleInvocation(t *testing.T) {
	runner := &fakeRunner{}
	client := New(nil, Options{Runner: runner})

	if err := client.TriggerTryJobs(context.Background(), []string{"win-rel", "linux-rel"}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one git cl try invocation, got %d", len(runner.calls))
	}
	cmd := strings.Join(runner.calls[0], " ")
	if !strings.HasPrefix(cmd, "git cl try -B luci.chromium.try") {
		t.Fatalf("unexpected command: %s", cmd)
	}
	if !strings.Contains(cmd, "-b linux-rel") || !strings.Contains(cmd, "-b win-rel") {
		t.Fatalf("missing builders in command: %s", cmd)
	}
}

func TestTriggerTryJobsNoBuildersIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	client := New(nil, Options{Runner: runner})

	if err := client.TriggerTryJobs(context.Background(), nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no invocation, got %v", runner.calls)
	}
}

func TestCLRevisionIDString(t *testing.T) {
	if got := (CLRevisionID{Issue: 123}).String(); got != "crrev.com/c/123" {
		t.Fatalf("unexpected string: %s", got)
	}
	if got := (CLRevisionID{Issue: 123, Patchset: 4}).String(); got != "crrev.com/c/123/4" {
		t.Fatalf("unexpected string: %s", got)
	}
}
