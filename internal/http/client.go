package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/digitalservices/queue-service/internal/http/ratelimit"
)

const userAgent = "DigitalServices-QueueService/1.0"

// maxErrorBody caps how much of a failed response is kept in a RequestError
const maxErrorBody = 2048

// Response is a fully read response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is the eventual result of a fired request
type Outcome struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// Client is an HTTP client for the technology, download-results, next-stage
// and output endpoints. It never retries; callers decide what a failure means.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
}

// NewClient creates a new HTTP client with rate limiting.
// The underlying client has no timeout; use context deadlines per call.
func NewClient(config ratelimit.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
		},
		rateLimiter: ratelimit.NewRateLimiter(config),
	}
}

// NewClientDefault creates a new HTTP client with default rate limiting
func NewClientDefault() *Client {
	return NewClient(ratelimit.DefaultConfig())
}

// Fire posts payload as JSON to url and returns as soon as the request has
// been written to the connection. The response is awaited in the background
// and delivered on the returned channel, which receives exactly one Outcome.
//
// Fire returns an error only when the request could not be built or was not
// written. Once written, the background request is detached from ctx
// cancellation, so a finished HTTP handler does not abort it. When ctx ends
// before the write, the request is aborted and never sent.
func (c *Client) Fire(ctx context.Context, url string, payload any) (<-chan Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	if err := c.rateLimiter.Throttle(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	wrote := make(chan error, 1)
	var once sync.Once
	signal := func(err error) {
		once.Do(func() { wrote <- err })
	}

	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			signal(info.Err)
		},
	}
	detached, abort := context.WithCancel(context.WithoutCancel(ctx))
	reqCtx := httptrace.WithClientTrace(detached, trace)

	req, err := c.newJSONRequest(reqCtx, url, body, nil)
	if err != nil {
		abort()
		return nil, &RequestError{URL: url, Err: err}
	}

	outcome := make(chan Outcome, 1)
	go func() {
		defer abort()
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			signal(err)
			outcome <- Outcome{URL: url, Duration: time.Since(start), Err: &RequestError{URL: url, Err: err}}
			return
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		o := Outcome{URL: url, StatusCode: resp.StatusCode, Body: data, Duration: time.Since(start)}
		switch {
		case readErr != nil:
			o.Err = &RequestError{URL: url, StatusCode: resp.StatusCode, Err: readErr}
		case !isSuccess(resp.StatusCode):
			o.Err = &RequestError{URL: url, StatusCode: resp.StatusCode, Body: truncate(data)}
		}
		outcome <- o
	}()

	select {
	case err := <-wrote:
		if err != nil {
			return nil, &RequestError{URL: url, Err: err}
		}
		return outcome, nil
	case <-ctx.Done():
		// Abort the request, then let the transport say whether it was
		// written before the abort landed.
		abort()
		if err := <-wrote; err != nil {
			return nil, &RequestError{URL: url, Err: ctx.Err()}
		}
		return outcome, nil
	}
}

// PostJSON posts payload as JSON and reads the whole response. A non-2xx
// status returns both the response and a *RequestError. A timeout set on ctx
// is reported with RequestError.Timeout.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, header http.Header) (*Response, error) {
	var body []byte
	switch p := payload.(type) {
	case json.RawMessage:
		body = p
	default:
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	if err := c.rateLimiter.Throttle(ctx); err != nil {
		return nil, wrapTransportError(url, fmt.Errorf("rate limiter error: %w", err))
	}

	req, err := c.newJSONRequest(ctx, url, body, header)
	if err != nil {
		return nil, &RequestError{URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError(url, fmt.Errorf("failed to read response body: %w", err))
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if !isSuccess(resp.StatusCode) {
		return out, &RequestError{URL: url, StatusCode: resp.StatusCode, Body: truncate(data)}
	}
	return out, nil
}

func (c *Client) newJSONRequest(ctx context.Context, url string, body []byte, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json, */*")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func wrapTransportError(url string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
	return &RequestError{URL: url, Timeout: timeout, Err: err}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
