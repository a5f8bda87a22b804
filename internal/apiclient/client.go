package apiclient

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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eyelink/client/internal/logging"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Request describes one call against the API.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Auth requires a bearer token. Without one the call fails with ErrUnauthorized before any I/O.
	Auth bool
}

// Client executes JSON requests against the API base URL. It never retries.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	limiter Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter installs an outbound request limiter.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New builds a Client. baseURL must be an absolute http(s) URL.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends req and decodes a 2xx JSON response into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var token string
	if req.Auth {
		if c.tokens == nil {
			return ErrUnauthorized
		}
		t, err := c.tokens.Token(ctx)
		if err != nil || t == "" {
			return ErrUnauthorized
		}
		token = t
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return err
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, method+" "+req.Path); err != nil {
			return &RequestFailedError{Reason: "request cancelled", Err: err}
		}
	}

	logger := logging.FromContext(ctx).With(
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", req.Path),
	)
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Debug("request transport error", slog.String("error", err.Error()))
		return &RequestFailedError{Reason: transportReason(err), Err: err}
	}
	defer resp.Body.Close()

	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RequestFailedError{StatusCode: resp.StatusCode, Reason: errorReason(resp.StatusCode, raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: path %q must be absolute", ErrInvalidURL, path)
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func errorReason(status int, raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}

func transportReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return "could not reach the server"
	}
}
