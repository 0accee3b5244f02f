// Package client provides an HTTP client for the reelquery answer server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reelquery/reelquery/internal/observability"
	"github.com/reelquery/reelquery/internal/planner"
	"github.com/reelquery/reelquery/internal/server"
)

// Client is an HTTP client for the answer server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the answer server.
	BaseURL string

	// Timeout is the request timeout. Answers that relax several times
	// take a while, so keep it above the server's own budget.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Timeout:         90 * time.Second,
		UserAgent:       "reelquery-client",
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost / 5, // 20% per host
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// HealthResponse represents the liveness response.
type HealthResponse struct {
	Status string `json:"status"`
}

// CatalogResponse is the endpoint listing.
type CatalogResponse struct {
	Endpoints []server.CatalogEntry `json:"endpoints"`
	Total     int                   `json:"total"`
}

// QueriesResponse is the recent query listing.
type QueriesResponse struct {
	Queries []observability.QueryLogEntry `json:"queries"`
	Total   int                           `json:"total"`
}

// APIError represents an API error response.
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the server is alive.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready returns the readiness report. An unhealthy server answers 503;
// the report is still returned alongside the error.
func (c *Client) Ready(ctx context.Context) (*server.HealthStatus, error) {
	var status server.HealthStatus
	err := c.get(ctx, "/readyz", &status)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		return &status, err
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Answer answers one request.
func (c *Client) Answer(ctx context.Context, req planner.Request) (*planner.ResultEnvelope, error) {
	var env planner.ResultEnvelope
	if err := c.post(ctx, "/v1/answer", req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Plan dry runs one request.
func (c *Client) Plan(ctx context.Context, req planner.Request) (*planner.Plan, error) {
	var plan planner.Plan
	if err := c.post(ctx, "/v1/plan", req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Catalog lists the endpoint catalog, optionally restricted to one kind.
func (c *Client) Catalog(ctx context.Context, kind string) (*CatalogResponse, error) {
	path := "/v1/catalog"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var resp CatalogResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecentQueries returns the most recent logged queries, newest first.
func (c *Client) RecentQueries(ctx context.Context, limit int) (*QueriesResponse, error) {
	path := "/v1/queries"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp QueriesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// envelope is the data/meta wrapper the server puts around /v1 responses.
type envelope struct {
	Data json.RawMessage      `json:"data"`
	Meta *server.ResponseMeta `json:"meta"`
}

// do executes a request.
func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			// Readiness reports carry their own body on 503.
			if result != nil && json.Valid(body) {
				_ = json.Unmarshal(body, result)
			}
			if apiErr.Code == "" {
				apiErr.Code = http.StatusText(resp.StatusCode)
				apiErr.Message = strings.TrimSpace(string(body))
			}
		}
		return apiErr
	}

	if result == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Meta != nil && len(env.Data) > 0 {
		body = env.Data
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
