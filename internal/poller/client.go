package poller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a dashboard talks to one backend, so per-host
// limits matter more than the global one
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request describes one round-trip issued by a [Fetcher].
type Request struct {
	// Method is the HTTP verb. Empty defaults to GET.
	Method string

	// URL is the absolute target URL.
	URL string

	// Headers are sent with the request.
	Headers map[string]string

	// Body is sent as the request body when non-nil (JSON is assumed).
	Body []byte

	// Timeout bounds the whole request when positive. Zero means the request
	// is only bounded by the caller's context.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if the request failed before
	// receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error is a *TransportError when no usable response was received.
	// nil means the request completed, whatever its status.
	Error error
}

// Fetcher performs a single request. Implementations report failures in
// Response.Error and never panic.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) Response
}

// Client is the HTTP [Fetcher] used for polling.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so each endpoint can carry its own bound. Response bodies are capped at 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a polling [Client] with a pooled transport.
//
// jar may be nil. When set, cookies issued by the backend (such as a login
// session) are replayed on every poll.
func NewClient(jar http.CookieJar) *Client {
	return &Client{
		httpClient: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// HTTPClient exposes the underlying client so collaborators (the auth client)
// can share its transport and cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, r Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   &TransportError{Op: "create request", Err: err},
		}
	}

	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   &TransportError{Op: "request failed", Err: err},
		}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      &TransportError{Op: "read response body", Err: err},
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. The client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// String implements fmt.Stringer for log output.
func (r Request) String() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return fmt.Sprintf("%s %s", method, r.URL)
}
