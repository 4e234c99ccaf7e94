package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/me/uthreads/pkg/model"
)

// Client is an HTTP client for the uthreads inspector API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates an inspector API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Get performs a GET request and returns the parsed envelope.
func (c *Client) Get(ctx context.Context, path string) (*apiResponse, error) {
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.Logger.Debug("HTTP request", "method", req.Method, "url", u)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(body))

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(body))
	}
	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}
	return &apiResp, nil
}

// ListRuns fetches one page of recorded runs.
func (c *Client) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	resp, err := c.Get(ctx, "/api/v1/runs"+query(opts))
	if err != nil {
		return nil, 0, err
	}
	var runs []*model.Run
	if err := json.Unmarshal(resp.Data, &runs); err != nil {
		return nil, 0, fmt.Errorf("parse runs: %w", err)
	}
	return runs, total(resp, len(runs)), nil
}

// ListEvents fetches one page of a run's events.
func (c *Client) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error) {
	resp, err := c.Get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/events"+query(opts))
	if err != nil {
		return nil, 0, err
	}
	var events []model.Event
	if err := json.Unmarshal(resp.Data, &events); err != nil {
		return nil, 0, fmt.Errorf("parse events: %w", err)
	}
	return events, total(resp, len(events)), nil
}

func query(opts model.ListOptions) string {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(opts.Limit))
	v.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Scenario != "" {
		v.Set("scenario", opts.Scenario)
	}
	if opts.Kind != "" {
		v.Set("kind", opts.Kind)
	}
	return "?" + v.Encode()
}

func total(resp *apiResponse, n int) int {
	if resp.Pagination != nil {
		return resp.Pagination.Total
	}
	return n
}
