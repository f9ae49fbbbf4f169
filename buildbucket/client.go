// Package buildbucket speaks the Buildbucket v2 pRPC API: single requests,
// batched requests, and the raw build records they return.
package buildbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHost serves the production Buildbucket instance.
const DefaultHost = "cr-buildbucket.appspot.com"

// pRPC prepends this prefix to JSON response bodies to defeat XSSI.
const prpcResponsePrefix = ")]}'"

// Request is one entry of a Builds.Batch call. Exactly one field is set.
type Request struct {
	GetBuild     *GetBuildRequest     `json:"getBuild,omitempty"`
	SearchBuilds *SearchBuildsRequest `json:"searchBuilds,omitempty"`
}

// GetBuildRequest fetches one build by id or by builder and number.
type GetBuildRequest struct {
	ID          json.Number `json:"id,omitempty"`
	Builder     *BuilderID  `json:"builder,omitempty"`
	BuildNumber int         `json:"buildNumber,omitempty"`
	Fields      string      `json:"fields,omitempty"`
}

// SearchBuildsRequest fetches builds matching a predicate, newest first.
type SearchBuildsRequest struct {
	Predicate BuildPredicate `json:"predicate"`
	Fields    string         `json:"fields,omitempty"`
	PageSize  int            `json:"pageSize,omitempty"`
}

// Response is one entry of a Builds.Batch response.
type Response struct {
	GetBuild     *RawBuild             `json:"getBuild,omitempty"`
	SearchBuilds *SearchBuildsResponse `json:"searchBuilds,omitempty"`
	Error        *RPCError             `json:"error,omitempty"`
}

// SearchBuildsResponse carries one page of search results.
type SearchBuildsResponse struct {
	Builds        []RawBuild `json:"builds,omitempty"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// RPCError is a per-request error inside an otherwise successful batch.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("buildbucket rpc error %d: %s", e.Code, e.Message)
}

// Caller issues a batched Buildbucket call. Client is the production
// implementation; tests substitute fakes.
type Caller interface {
	CallBatch(ctx context.Context, reqs []Request) ([]Response, error)
}

// Client talks to a Buildbucket host over pRPC with JSON encoding.
type Client struct {
	host   string
	client *http.Client
}

// NewClient returns a client for the given host, defaulting to production.
func NewClient(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		host: host,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type batchRequestBody struct {
	Requests []Request `json:"requests"`
}

type batchResponseBody struct {
	Responses []Response `json:"responses"`
}

// CallBatch executes one Builds.Batch round trip.
func (c *Client) CallBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	var body batchResponseBody
	if err := c.call(ctx, "buildbucket.v2.Builds", "Batch", batchRequestBody{Requests: reqs}, &body); err != nil {
		return nil, err
	}
	return body.Responses, nil
}

func (c *Client) call(ctx context.Context, service, method string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/prpc/%s/%s", c.host, service, method)
	if strings.Contains(c.host, "://") {
		// Test servers pass a full base URL instead of a bare host.
		url = fmt.Sprintf("%s/prpc/%s/%s", strings.TrimSuffix(c.host, "/"), service, method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s/%s: unexpected status %s: %s", service, method, resp.Status, strings.TrimSpace(string(raw)))
	}

	trimmed := bytes.TrimPrefix(raw, []byte(prpcResponsePrefix))
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s/%s: decode response: %w", service, method, err)
	}
	return nil
}
