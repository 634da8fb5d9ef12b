// Package client provides the HTTP client for the TMDB content API with
// request pacing, error classification and a retry state machine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/config"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/Sternrassler/tmdb-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_requests_total",
		Help: "Total TMDB requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tmdb_request_duration_seconds",
		Help:    "TMDB request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_errors_total",
		Help: "Total TMDB errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds the response body kept on a RemoteAPIError.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, e.g. https://api.themoviedb.org/3
	BaseURL string

	// APIKey is sent as the api_key query parameter.
	APIKey string

	// Timeout per request.
	Timeout time.Duration

	// Connection pool shared by every request of the client.
	MaxConns     int
	MaxIdleConns int

	// Pacing, see ratelimit.Config.
	RequestsPerSecond float64
	Burst             int

	UserAgent string

	// Endpoints is the endpoint table. Nil means config.DefaultEndpoints().
	Endpoints config.Endpoints
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:      "https://api.themoviedb.org/3",
		APIKey:       apiKey,
		Timeout:      30 * time.Second,
		MaxConns:     200,
		MaxIdleConns: 50,
		UserAgent:    "tmdb-ingest/1.0",
	}
}

// ConfigFrom maps the process configuration onto a client Config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig(cfg.TMDB.APIKey)
	c.BaseURL = cfg.TMDB.BaseURL
	c.Timeout = cfg.TMDB.Timeout
	c.MaxConns = cfg.Fetch.MaxConns
	c.MaxIdleConns = cfg.Fetch.MaxIdleConns
	c.RequestsPerSecond = cfg.TMDB.RequestsPerSecond
	c.Burst = cfg.TMDB.Burst
	c.Endpoints = cfg.Endpoints
	return c
}

// Client talks to the TMDB API. It is safe for concurrent use; all calls
// share one connection pool.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	baseURL     *url.URL
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.MaxConns <= 0 {
		return nil, fmt.Errorf("max_conns must be > 0 (got %d)", cfg.MaxConns)
	}

	if cfg.Endpoints == nil {
		cfg.Endpoints = config.DefaultEndpoints()
	}

	logger := logging.NewLogger("tmdb-client")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConns
	transport.MaxIdleConns = cfg.MaxIdleConns
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConns

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		rateLimiter: ratelimit.NewTracker(ratelimit.Config{
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}, logger),
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

// CountPages asks the discover endpoint how many result pages window holds
// for itemType. A missing total_pages counts as 1. Not retried.
func (c *Client) CountPages(ctx context.Context, window catalog.DateWindow, itemType catalog.ItemType) (int, error) {
	page, err := c.discover(ctx, PageRequest{Window: window, Type: itemType, Page: 1})
	if err != nil {
		return 0, err
	}
	if page.TotalPages <= 0 {
		return 1, nil
	}
	return page.TotalPages, nil
}

// FetchPage returns the result summaries of one discover page. Not retried.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	page, err := c.discover(ctx, req)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) discover(ctx context.Context, req PageRequest) (*discoverPage, error) {
	endpoint, err := c.config.Endpoints.Lookup(config.EndpointDiscover, req.Type)
	if err != nil {
		return nil, err
	}

	query := endpoint.Query()
	query.Set("page", strconv.Itoa(req.Page))
	field := req.Type.DateField()
	query.Set(field+".gte", req.Window.StartDate())
	query.Set(field+".lte", req.Window.EndDate())

	body, err := c.get(ctx, string(config.EndpointDiscover), endpoint.Path, query, endpoint.Headers)
	if err != nil {
		return nil, err
	}

	var page discoverPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode discover page %d: %w", req.Page, err)
	}
	return &page, nil
}

// FetchResource fetches one sub-resource of item id as raw JSON.
// A single attempt; callers own retries.
func (c *Client) FetchResource(ctx context.Context, itemType catalog.ItemType, id int64, resource SubResource) (json.RawMessage, error) {
	endpoint, err := c.config.Endpoints.Lookup(config.EndpointDetails, itemType)
	if err != nil {
		return nil, err
	}

	path := endpoint.Path + "/" + strconv.FormatInt(id, 10) + resource.PathSuffix()
	body, err := c.get(ctx, string(resource), path, endpoint.Query(), endpoint.Headers)
	if err != nil {
		return nil, err
	}

	if !isObject(body) {
		return nil, fmt.Errorf("%w: %s of %d: %s", ErrInvalidPayload, resource, id, truncate(string(body), 64))
	}
	return json.RawMessage(body), nil
}

// isObject reports whether body is a valid JSON object. null, arrays and
// scalars are rejected.
func isObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// Genres returns the genre list for itemType.
func (c *Client) Genres(ctx context.Context, itemType catalog.ItemType) ([]Genre, error) {
	endpoint, err := c.config.Endpoints.Lookup(config.EndpointGenre, itemType)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, string(config.EndpointGenre), endpoint.Path, endpoint.Query(), endpoint.Headers)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Genres []Genre `json:"genres"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	return envelope.Genres, nil
}

// get performs one GET and returns the body of a 2xx response.
// label is the low-cardinality endpoint name used in metrics and errors.
func (c *Client) get(ctx context.Context, label, path string, query url.Values, headers map[string]string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &TransportError{Endpoint: label, Err: err}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	query.Set("api_key", c.config.APIKey)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", label).
		Str("path", path).
		Str("page", query.Get("page")).
		Msg("Executing TMDB request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		return nil, &TransportError{Endpoint: label, Err: redactURLError(err)}
	}
	defer resp.Body.Close()

	c.rateLimiter.UpdateFromResponse(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		return nil, &TransportError{Endpoint: label, Err: fmt.Errorf("read body: %w", err)}
	}

	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &RemoteAPIError{
			Endpoint:   label,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
			Class:      class,
		}
	}

	return body, nil
}

// redactURLError drops the request URL, which carries the api key, from
// errors returned by http.Client.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RateLimitState returns the current pacing state.
func (c *Client) RateLimitState() ratelimit.State {
	return c.rateLimiter.State()
}

// Close releases idle connections of the shared pool.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
