// Package api is the HTTP adapter for the remote job tracking API.
//
// Every call reads the bearer token from the workspace's client-state store, so the
// adapter never holds identity of its own. A 401 is broadcast to the subscribers
// registered with OnUnauthorized before the error is returned to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/correlation"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/version"
)

const maxErrorBody = 64 << 10

type tokenOverrideKey struct{}

// WithToken makes the next call on ctx send token instead of the persisted one.
// 401 responses to such calls are not broadcast.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenOverrideKey{}, token)
}

func tokenOverride(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenOverrideKey{}).(string)
	return t, ok
}

// UnauthorizedFunc receives the token that the API rejected.
type UnauthorizedFunc func(token string)

type Client struct {
	baseURL   string
	http      *http.Client
	state     domain.ClientStateStore
	metrics   *metrics.APIMetrics
	userAgent string

	mu          sync.Mutex
	nextSubID   int
	subscribers map[int]UnauthorizedFunc
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.APIMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL. A nil state store means every call is unauthenticated.
func New(baseURL string, state domain.ClientStateStore, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        http.DefaultClient,
		state:       state,
		userAgent:   version.UserAgent(),
		subscribers: make(map[int]UnauthorizedFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUnauthorized registers fn for 401 events. The returned func removes it.
func (c *Client) OnUnauthorized(fn UnauthorizedFunc) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Client) emitUnauthorized(token string) {
	c.mu.Lock()
	subs := make([]UnauthorizedFunc, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Unauthorized.Inc()
	}
	for _, fn := range subs {
		fn(token)
	}
}

type requestConfig struct {
	query   url.Values
	headers http.Header
}

type RequestOption func(*requestConfig)

func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) { rc.query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) { rc.headers.Set(key, value) }
}

// Do sends one request. body may be nil, url.Values (form encoded) or any JSON-encodable
// value; out, when non-nil, receives the decoded JSON response. Nothing is retried.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	rc := requestConfig{headers: make(http.Header)}
	for _, opt := range opts {
		opt(&rc)
	}

	token, overridden := tokenOverride(ctx)
	if !overridden {
		var err error
		if token, err = c.persistedToken(ctx); err != nil {
			return err
		}
	}

	req, err := c.newRequest(ctx, method, path, body, rc)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	endpoint := endpointLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.count(method, endpoint, KindNetworkUnreachable.String())
		return &Error{Kind: KindNetworkUnreachable, Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.count(method, endpoint, "ok")
		return decodeBody(resp, method, path, out)
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg, fields := parseDetail(raw)
	apiErr := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Method:  method,
		Path:    path,
		Message: msg,
		Fields:  fields,
	}
	c.count(method, endpoint, apiErr.Kind.String())
	slog.DebugContext(ctx, "Remote API call failed", "method", method, "path", path, "status", resp.StatusCode, "detail", msg)

	if apiErr.Kind == KindAuthenticationFailed && !overridden && token != "" {
		c.emitUnauthorized(token)
	}
	return apiErr
}

func (c *Client) persistedToken(ctx context.Context) (string, error) {
	if c.state == nil {
		return "", nil
	}
	token, err := c.state.Get(ctx, domain.StateKeyToken)
	if errors.Is(err, domain.ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read persisted token: %w", err)
	}
	return token, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, rc requestConfig) (*http.Request, error) {
	target := c.baseURL + path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}
	for k, v := range rc.headers {
		req.Header[k] = v
	}
	return req, nil
}

func decodeBody(resp *http.Response, method, path string, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Kind: KindUnexpected, Status: resp.StatusCode, Method: method, Path: path, Message: "malformed response body", Err: err}
	}
	return nil
}

func (c *Client) count(method, endpoint, kind string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestsTotal.With(prometheus.Labels{"method": method, "endpoint": endpoint, "kind": kind}).Inc()
}

var idSegment = regexp.MustCompile(`/\d+(/|$)`)

// endpointLabel keeps metric cardinality bounded: /jobs/42 -> /jobs/:id.
func endpointLabel(path string) string {
	return idSegment.ReplaceAllString(path, "/:id$1")
}
