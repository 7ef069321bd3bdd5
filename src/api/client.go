package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ErrUnauthorized marks a 401 response from the backend.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the backend.
type Error struct {
	Method string
	Path   string
	Status int
	Detail string
}

// Error formats the method, path, status and detail.
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
}

// Unwrap lets errors.Is match ErrUnauthorized on 401 responses.
func (e *Error) Unwrap() error {
	if e.Status == fasthttp.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	AccessToken() string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	// OnUnauthorized runs after any request answered with 401.
	OnUnauthorized func()
	HTTPClient     *fasthttp.Client
}

// Client calls the platform REST API.
type Client struct {
	baseURL        string
	timeout        time.Duration
	tokens         TokenSource
	onUnauthorized func()
	http           *fasthttp.Client
	logger         zerolog.Logger
}

// New creates a REST client.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &fasthttp.Client{Name: "sosnet-realtime"}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		timeout:        opts.Timeout,
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
		http:           opts.HTTPClient,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// do sends one request. fasthttp has no context support, so ctx only
// contributes its deadline and a pre-flight cancellation check.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.SetBody(raw)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &Error{Method: method, Path: path, Status: status, Detail: detailOf(resp.Body())}
		if status == fasthttp.StatusUnauthorized {
			c.logger.Warn().Str("path", path).Msg("session rejected by backend")
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// detailOf extracts the backend's "detail" field, falling back to the raw body.
func detailOf(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
