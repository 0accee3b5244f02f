// Package tmdb is an HTTP client for the movie/TV discovery API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// Client is an HTTP client for the discovery API. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	token      string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	initial    time.Duration
	maxBackoff time.Duration
	log        *logger.Logger
}

// Config configures the client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.themoviedb.org/3.
	BaseURL string

	// Token is a v4 read access token sent as a bearer token.
	Token string

	// Language is sent with detail and genre calls.
	Language string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestsPerSecond and Burst bound the outbound request rate.
	RequestsPerSecond float64
	Burst             int

	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.themoviedb.org/3",
		Language:          "en-US",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 40,
		Burst:             20,
		MaxRetries:        3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		MaxIdleConns:      100,
		MaxConnsPerHost:   50,
		IdleConnTimeout:   90 * time.Second,
	}
}

// New creates a client.
func New(cfg Config, log *logger.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
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
	if log == nil {
		log = logger.Discard()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		language:   cfg.Language,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		log:        log,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// List fetches one page of a listing. Credits endpoints return cast and
// crew credits merged into a single page, one item per work.
func (c *Client) List(ctx context.Context, path string, params map[string]string) (*Page, error) {
	if endpoint.IsCredits(path) {
		var resp creditsResponse
		if err := c.get(ctx, path, params, &resp); err != nil {
			return nil, err
		}
		items := mergeCredits(resp)
		return &Page{Page: 1, Results: items, TotalPages: 1, TotalResults: len(items)}, nil
	}

	var resp listResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	return &Page{
		Page:         resp.Page,
		Results:      resp.Results,
		TotalPages:   resp.TotalPages,
		TotalResults: resp.TotalResults,
	}, nil
}

// mergeCredits keeps the first credit of each work, cast before crew.
func mergeCredits(resp creditsResponse) []Item {
	type key struct {
		media string
		id    int
	}
	seen := make(map[key]bool, len(resp.Cast)+len(resp.Crew))
	out := make([]Item, 0, len(resp.Cast)+len(resp.Crew))
	for _, list := range [][]Item{resp.Cast, resp.Crew} {
		for _, it := range list {
			k := key{it.MediaType, it.ID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
	}
	return out
}

// Detail fetches the full record of one movie or show, including
// financial fields and keywords.
func (c *Client) Detail(ctx context.Context, media entity.Media, id int) (*Item, error) {
	if media != entity.MediaMovie && media != entity.MediaTV {
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown media %q", media))
	}
	var resp detailResponse
	params := map[string]string{"language": c.language, "append_to_response": "keywords"}
	if err := c.get(ctx, fmt.Sprintf("/%s/%d", media, id), params, &resp); err != nil {
		return nil, err
	}
	it := resp.item(media)
	return &it, nil
}

// Search looks up people, companies or keywords by name. kind is the
// search path segment: "person", "company" or "keyword".
func (c *Client) Search(ctx context.Context, kind, name string) ([]Named, error) {
	switch kind {
	case "person", "company", "keyword":
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported search kind %q", kind))
	}
	var resp searchResponse
	if err := c.get(ctx, "/search/"+kind, map[string]string{"query": name}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Genres returns the official genre list of one media type.
func (c *Client) Genres(ctx context.Context, media entity.Media) ([]Named, error) {
	var resp genreListResponse
	if err := c.get(ctx, "/genre/"+string(media)+"/list", map[string]string{"language": c.language}, &resp); err != nil {
		return nil, err
	}
	out := make([]Named, len(resp.Genres))
	for i, g := range resp.Genres {
		out[i] = Named{ID: g.ID, Name: g.Name}
	}
	return out, nil
}

// get performs a rate limited GET with bounded retries. Transient failures
// (network errors, timeouts, 429 and 5xx) are retried with exponential
// backoff; client errors and malformed bodies fail at once.
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	target := c.baseURL + path
	if q := encode(params); q != "" {
		target += "?" + q
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := c.do(ctx, target, result)
		if err != nil && !apperrors.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.log.Warn("Retrying discovery API request",
				"path", path,
				"attempt", attempt,
				"delay", d,
				"error", err,
			)
		}),
	)
	return err
}

// encode renders params with sorted keys so identical calls produce
// identical URLs.
func encode(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// do executes one attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, target string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return apperrors.InternalError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperrors.TimeoutError("discovery API request")
		}
		return apperrors.Wrap(apperrors.CodeUnavailable, "discovery API unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return apperrors.RateLimitedError(retryAfter)
	case resp.StatusCode >= 500:
		return apperrors.Wrap(apperrors.CodeUnavailable, fmt.Sprintf("discovery API returned HTTP %d", resp.StatusCode), apiError(resp.StatusCode, body))
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.Wrap(apperrors.CodeNotFound, "discovery API resource not found", apiError(resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return apperrors.ExternalAPIError(fmt.Sprintf("discovery API returned HTTP %d", resp.StatusCode), apiError(resp.StatusCode, body)).
			WithDetail("status", strconv.Itoa(resp.StatusCode))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return apperrors.ExternalAPIError("malformed discovery API response", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.StatusMessage == "" {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	return &apiErr
}
