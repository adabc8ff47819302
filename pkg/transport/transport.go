// Package transport is the HTTP execution layer: one reusable client with a
// bounded connection pool, per-request timeout, a client-scoped TLS
// verification flag and retry with exponential backoff on transient failures.
//
// The transport never judges HTTP statuses as success or failure; it returns
// the final status to the caller once retries are exhausted.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/restbound/restbound/pkg/config"
)

// Statuses retried automatically, alongside connection-level errors.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Request is one HTTP call to execute.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Result carries the raw outcome of a call after retries.
type Result struct {
	Status   int
	FinalURL string
	Body     []byte
}

// Options configures a Transport.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	RetryMax           int
	RetryWaitMin       time.Duration
	RetryWaitMax       time.Duration
	Logger             *zap.Logger
}

// Transport executes HTTP requests for every other component of the client.
type Transport struct {
	mu     sync.RWMutex
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// New builds a Transport. A negative timeout is rejected with a config.Error.
func New(opts Options) (*Transport, error) {
	if opts.Timeout < 0 {
		return nil, &config.Error{Field: "Timeout", Reason: "cannot be negative"}
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = config.DefaultRetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = config.DefaultRetryWaitMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transport{
		opts:   opts,
		logger: logger.With(zap.String("component", "transport")),
	}
	t.client = t.buildClient()
	return t, nil
}

func (t *Transport) buildClient() *http.Client {
	return &http.Client{
		Timeout: t.opts.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        25,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: t.opts.InsecureSkipVerify,
			},
		},
	}
}

// SetTimeout changes the per-request timeout for subsequent calls.
func (t *Transport) SetTimeout(d time.Duration) error {
	if d < 0 {
		return &config.Error{Field: "Timeout", Reason: "cannot be negative"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.Timeout = d
	t.client.Timeout = d
	return nil
}

// Timeout returns the current per-request timeout.
func (t *Transport) Timeout() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.opts.Timeout
}

// SetInsecureSkipVerify changes the TLS verification policy for subsequent
// calls. The connection pool is rebuilt so cached connections cannot bypass
// the new policy.
func (t *Transport) SetInsecureSkipVerify(skip bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opts.InsecureSkipVerify == skip {
		return
	}
	if old, ok := t.client.Transport.(*http.Transport); ok {
		old.CloseIdleConnections()
	}
	t.opts.InsecureSkipVerify = skip
	t.client = t.buildClient()
}

// statusError marks a retryable HTTP status inside the retry loop.
type statusError struct {
	status   int
	finalURL string
	body     []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("transient status %d from %s", e.status, e.finalURL)
}

// Do executes the request, retrying transient failures up to RetryMax times.
// On exhausted status-based retries the last Result is still returned so the
// caller can inspect the final status; an error is only returned when no
// response was obtained at all.
func (t *Transport) Do(ctx context.Context, req Request) (*Result, error) {
	finalURL := req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url %s: %w", req.URL, err)
		}
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		finalURL = u.String()
	}

	attempt := 0
	operation := func() (*Result, error) {
		attempt++
		t.mu.RLock()
		client := t.client
		t.mu.RUnlock()

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, finalURL, bytes.NewReader(req.Body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		res := &Result{
			Status:   resp.StatusCode,
			FinalURL: resp.Request.URL.String(),
			Body:     body,
		}
		if retryableStatus[resp.StatusCode] {
			return res, &statusError{status: resp.StatusCode, finalURL: res.FinalURL, body: body}
		}
		return res, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.RetryWaitMin
	b.MaxInterval = t.opts.RetryWaitMax

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.opts.RetryMax)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			t.logger.Debug("retrying request",
				zap.String("method", req.Method),
				zap.String("url", finalURL),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			// Retries exhausted on a transient status; hand the last
			// response back for the caller to judge.
			return &Result{Status: se.status, FinalURL: se.finalURL, Body: se.body}, nil
		}
		return nil, err
	}
	return res, nil
}
