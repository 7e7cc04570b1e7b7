package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Ghostified/webhook-tracker-kati/internal/ticket"
)

const maxResponseBytes = 32 * 1024 * 1024

// Options configures the backend client.
type Options struct {
	// BaseURL of the tracker backend, e.g. "http://127.0.0.1:3000".
	BaseURL string
	// Timeout per request. Zero means no timeout.
	Timeout time.Duration
	// Location used for received_at values without a zone. Defaults to time.Local.
	Location *time.Location
	Logger   *log.Logger
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Metrics counts backend calls.
type Metrics struct {
	FetchSuccess int
	FetchError   int
	ClearSuccess int
	ClearError   int
	LastActivity time.Time
}

// Client talks to the tracker backend's read and clear endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loc        *time.Location
	logger     *log.Logger

	mu      sync.RWMutex
	metrics Metrics
}

// NewClient constructs a backend client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		tr := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Transport: tr}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[fetch] ", log.LstdFlags)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		loc:        opts.Location,
		logger:     opts.Logger,
	}
}

// BaseURL returns the backend origin the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// Metrics returns a snapshot of call counters.
func (c *Client) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

func (c *Client) record(fetch, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case fetch && success:
		c.metrics.FetchSuccess++
	case fetch:
		c.metrics.FetchError++
	case success:
		c.metrics.ClearSuccess++
	default:
		c.metrics.ClearError++
	}
	c.metrics.LastActivity = time.Now()
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "webhook-tracker-dashboard/1.0")
	return c.httpClient.Do(req)
}

// FetchTickets reads the current collection for clientID. Every failure is
// reported as a *FetchError; nothing is retried.
func (c *Client) FetchTickets(ctx context.Context, clientID string) (ticket.Collection, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(clientID))
	if err != nil {
		c.record(true, false)
		return nil, &FetchError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		c.record(true, false)
		return nil, &FetchError{Kind: KindStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(true, false)
		return nil, &FetchError{Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}

	collection, err := ticket.DecodeCollection(body, c.loc)
	if err != nil {
		c.record(true, false)
		return nil, &FetchError{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}

	c.record(true, true)
	return collection, nil
}

// Clear asks the backend to delete every ticket for clientID. Any 2xx is success.
func (c *Client) Clear(ctx context.Context, clientID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/clear/"+url.PathEscape(clientID))
	if err != nil {
		c.record(false, false)
		return &ClearError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(false, false)
		return &ClearError{Kind: KindStatus, Status: resp.StatusCode}
	}
	c.record(false, true)
	c.logger.Printf("Cleared tickets for %s", clientID)
	return nil
}

// String identifies the client in logs.
func (c *Client) String() string {
	return fmt.Sprintf("fetch.Client(%s)", c.baseURL)
}
