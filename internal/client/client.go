// Package client talks to the data provider backend over HTTP. Every request
// target comes from an endpoint.Resolver.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/types"
)

var _ types.Backend = (*Client)(nil)

// APIError is a non-success answer from the backend.
type APIError struct {
	Op     endpoint.Operation
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Op, e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the backend, which for
// scoped operations means the recording expired or never existed.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client implements types.Backend.
type Client struct {
	resolver   *endpoint.Resolver
	httpClient *http.Client
}

// New creates a Client. A zero timeout falls back to 10s.
func New(resolver *endpoint.Resolver, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		resolver: resolver,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Resolver returns the resolver requests are built with.
func (c *Client) Resolver() *endpoint.Resolver {
	return c.resolver
}

func (c *Client) ListAll(ctx context.Context) (types.DBStructure, error) {
	var resp types.ListAllResponse
	if err := c.do(ctx, http.MethodGet, endpoint.ListAll, "", nil, &resp); err != nil {
		return nil, err
	}
	// list_all reports failures in-band with a 200.
	if resp.Status == "error" {
		return nil, &APIError{Op: endpoint.ListAll, Detail: resp.Message}
	}
	if resp.Data == nil {
		resp.Data = types.DBStructure{}
	}
	return resp.Data, nil
}

func (c *Client) CreateSource(ctx context.Context, req types.CreateSourceRequest) (*types.SourceResponse, error) {
	var resp types.SourceResponse
	if err := c.do(ctx, http.MethodPost, endpoint.CreateSource, "", req, &resp); err != nil {
		return nil, err
	}
	if resp.RecordingUUID.IsZero() {
		return nil, &APIError{Op: endpoint.CreateSource, Detail: "response carries no recording_uuid"}
	}
	return &resp, nil
}

func (c *Client) ListSessions(ctx context.Context) (map[types.RecordingID]types.SessionSummary, error) {
	resp := make(map[types.RecordingID]types.SessionSummary)
	if err := c.do(ctx, http.MethodGet, endpoint.ListSessions, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PlayData(ctx context.Context, id types.RecordingID) (*types.StatusResponse, error) {
	var resp types.StatusResponse
	if err := c.do(ctx, http.MethodPost, endpoint.PlayData, id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Heartbeat(ctx context.Context, id types.RecordingID) (*types.HeartbeatResponse, error) {
	var resp types.HeartbeatResponse
	if err := c.do(ctx, http.MethodPost, endpoint.Heartbeat, id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LoadRange(ctx context.Context, id types.RecordingID, req types.LoadRangeRequest) (*types.StatusResponse, error) {
	if req.EndIdx < req.StartIdx {
		return nil, fmt.Errorf("load range: end %d before start %d", req.EndIdx, req.StartIdx)
	}
	var resp types.StatusResponse
	if err := c.do(ctx, http.MethodPost, endpoint.LoadRange, id, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetInfo(ctx context.Context, id types.RecordingID) (*types.SessionInfo, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint.GetInfo, id, nil, &raw); err != nil {
		return nil, err
	}
	info := &types.SessionInfo{RecordingUUID: id, Raw: raw}
	if len(raw) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", endpoint.GetInfo, err)
	}
	return info, nil
}

func (c *Client) EnableStreamingMode(ctx context.Context, id types.RecordingID, enabled bool) (*types.StatusResponse, error) {
	var resp types.StatusResponse
	if err := c.do(ctx, http.MethodPost, endpoint.EnableStreamingMode, id, types.ModeRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) EnableAlignmentMode(ctx context.Context, id types.RecordingID, enabled bool) (*types.StatusResponse, error) {
	var resp types.StatusResponse
	if err := c.do(ctx, http.MethodPost, endpoint.EnableAlignmentMode, id, types.ModeRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RefreshUI(ctx context.Context, id types.RecordingID) (*types.StatusResponse, error) {
	var resp types.StatusResponse
	if err := c.do(ctx, http.MethodPost, endpoint.RefreshUI, id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// errorBody matches the backend's {"detail": "..."} error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// do resolves op, sends body as JSON when non-nil and decodes the response
// into out.
func (c *Client) do(ctx context.Context, method string, op endpoint.Operation, id types.RecordingID, body, out any) error {
	url, err := c.resolver.ResolveChecked(op, id)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := types.NewRequestID()
	req.Header.Set("X-Request-Id", string(requestID))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}

	slog.Debug("backend call",
		"op", string(op),
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"request_id", string(requestID),
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := string(respBody)
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Detail != "" {
			detail = eb.Detail
		}
		return &APIError{Op: op, Status: resp.StatusCode, Detail: detail}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}
