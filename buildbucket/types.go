package buildbucket

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Build identifies a requested or resolved build. The zero Number means the
// build number is not known yet and must be inferred by the caller. Build is
// comparable and is used directly as a map key.
type Build struct {
	Builder string
	Number  int
	ID      string
	Bucket  string
}

// NewBuild returns a try-bucket build identifier.
func NewBuild(builder string, number int) Build {
	return Build{Builder: builder, Number: number, Bucket: "try"}
}

func (b Build) String() string {
	if b.Number == 0 {
		return fmt.Sprintf("%s/%s", b.Bucket, b.Builder)
	}
	return fmt.Sprintf("%s/%s/%d", b.Bucket, b.Builder, b.Number)
}

// StatusCode is the lifecycle portion of a build status. TRIGGERED and
// MISSING are synthetic codes assigned by the resolver; Buildbucket never
// reports them.
type StatusCode string

const (
	StatusScheduled    StatusCode = "SCHEDULED"
	StatusStarted      StatusCode = "STARTED"
	StatusCompleted    StatusCode = "COMPLETED"
	StatusInfraFailure StatusCode = "INFRA_FAILURE"
	StatusCanceled     StatusCode = "CANCELED"
	StatusTriggered    StatusCode = "TRIGGERED"
	StatusMissing      StatusCode = "MISSING"
)

// Result refines a COMPLETED status.
type Result string

const (
	ResultUnknown Result = ""
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// Status pairs a status code with an optional completion result. Result is
// empty unless Code is StatusCompleted.
type Status struct {
	Code   StatusCode
	Result Result
}

// Triggered marks a build scheduled by the current invocation.
var Triggered = Status{Code: StatusTriggered}

// Missing marks a try builder with no build and no way to get one.
var Missing = Status{Code: StatusMissing}

// StatusFromBuildbucket converts a raw Buildbucket status string. SUCCESS and
// FAILURE collapse into COMPLETED with a result; every other status carries
// no result.
func StatusFromBuildbucket(raw string) Status {
	switch raw {
	case "SUCCESS", "FAILURE":
		return Status{Code: StatusCompleted, Result: Result(raw)}
	default:
		return Status{Code: StatusCode(raw)}
	}
}

func (s Status) String() string {
	if s.Code == StatusCompleted && s.Result != ResultUnknown {
		return string(s.Code) + "/" + string(s.Result)
	}
	return string(s.Code)
}

// BuildStatuses maps resolved build identifiers to their statuses.
type BuildStatuses map[Build]Status

// BuilderID addresses a builder within a project and bucket.
type BuilderID struct {
	Project string `json:"project,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Builder string `json:"builder,omitempty"`
}

// Log is a named log attached to a step.
type Log struct {
	Name    string `json:"name"`
	ViewURL string `json:"viewUrl"`
}

// Step is a single build step with its logs.
type Step struct {
	Name string `json:"name"`
	Logs []Log  `json:"logs,omitempty"`
}

// Output carries the recipe output properties.
type Output struct {
	Properties *structpb.Struct `json:"properties,omitempty"`
}

// RawBuild is the wire shape of a Buildbucket build. Only the fields named by
// the resolver's field mask are populated; anything else is zero.
type RawBuild struct {
	// Buildbucket serializes int64 build ids as JSON strings.
	ID      json.Number `json:"id,omitempty"`
	Number  int         `json:"number,omitempty"`
	Builder BuilderID   `json:"builder"`
	Status  string      `json:"status,omitempty"`
	Output  *Output     `json:"output,omitempty"`
	Steps   []Step      `json:"steps,omitempty"`
}

// Property returns a named output property, or nil when absent.
func (b RawBuild) Property(name string) *structpb.Value {
	if b.Output == nil || b.Output.Properties == nil {
		return nil
	}
	return b.Output.Properties.Fields[name]
}

// GerritChange references a patchset of a pending change.
type GerritChange struct {
	Host     string `json:"host,omitempty"`
	Change   int    `json:"change,omitempty"`
	Patchset int    `json:"patchset,omitempty"`
}

// BuildPredicate selects builds for a search request.
type BuildPredicate struct {
	Builder       *BuilderID     `json:"builder,omitempty"`
	Status        string         `json:"status,omitempty"`
	GerritChanges []GerritChange `json:"gerritChanges,omitempty"`
}
