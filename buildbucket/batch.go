package buildbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrBatchConsumed is returned when Execute is called on a spent batch.
var ErrBatchConsumed = errors.New("buildbucket batch already executed")

// Batch accumulates get and search requests and issues them as a single
// Builds.Batch round trip. Adding requests performs no network activity.
// A Batch is single-use: after Execute returns, the batch is spent.
type Batch struct {
	caller   Caller
	requests []Request
	limits   []int
	consumed bool
}

// NewBatch returns an empty batch bound to a caller.
func NewBatch(caller Caller) *Batch {
	return &Batch{caller: caller}
}

// AddGetBuild queues a fetch for one build, by id when the identifier has
// one, otherwise by builder name and number.
func (b *Batch) AddGetBuild(build Build, project string, fields []string) {
	req := &GetBuildRequest{Fields: strings.Join(fields, ",")}
	if build.ID != "" {
		req.ID = json.Number(build.ID)
	} else {
		req.Builder = &BuilderID{
			Project: project,
			Bucket:  build.Bucket,
			Builder: build.Builder,
		}
		req.BuildNumber = build.Number
	}
	b.requests = append(b.requests, Request{GetBuild: req})
	b.limits = append(b.limits, 1)
}

// AddSearchBuilds queues a search contributing up to limit builds, newest
// first, to the flattened result.
func (b *Batch) AddSearchBuilds(predicate BuildPredicate, fields []string, limit int) {
	if limit <= 0 {
		limit = 1
	}
	prefixed := make([]string, len(fields))
	for i, field := range fields {
		prefixed[i] = "builds.*." + field
	}
	b.requests = append(b.requests, Request{SearchBuilds: &SearchBuildsRequest{
		Predicate: predicate,
		Fields:    strings.Join(prefixed, ","),
		PageSize:  limit,
	}})
	b.limits = append(b.limits, limit)
}

// Len reports the number of queued requests.
func (b *Batch) Len() int {
	return len(b.requests)
}

// Execute issues all queued requests in one round trip and returns the
// flattened builds in request order. An empty batch returns no builds and
// makes no call.
func (b *Batch) Execute(ctx context.Context) ([]RawBuild, error) {
	if b.consumed {
		return nil, ErrBatchConsumed
	}
	b.consumed = true
	if len(b.requests) == 0 {
		return nil, nil
	}

	responses, err := b.caller.CallBatch(ctx, b.requests)
	if err != nil {
		return nil, err
	}
	if len(responses) != len(b.requests) {
		return nil, fmt.Errorf("buildbucket batch: %d responses for %d requests", len(responses), len(b.requests))
	}

	var builds []RawBuild
	for i, resp := range responses {
		switch {
		case resp.Error != nil:
			return nil, resp.Error
		case resp.GetBuild != nil:
			builds = append(builds, *resp.GetBuild)
		case resp.SearchBuilds != nil:
			matches := resp.SearchBuilds.Builds
			if len(matches) > b.limits[i] {
				matches = matches[:b.limits[i]]
			}
			builds = append(builds, matches...)
		}
	}
	return builds, nil
}
