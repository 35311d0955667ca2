// Package client talks to vaultd and runs the unlock/save flow on top of it.
// All encryption happens here; the server only ever sees sealed bytes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetsin/code-jam-2025/internal/crypto"
)

// Client is the vaultd HTTP API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
	logger     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times a failed GET is retried.
func WithRetries(n int) Option {
	return func(c *Client) { c.retry.MaxRetries = n }
}

func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateResponse carries the write secret. It is returned exactly once.
type CreateResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func vaultPath(id string) string {
	return "/api/vaults/" + url.PathEscape(id)
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	return err
}

func (c *Client) Create(ctx context.Context, id string) (*CreateResponse, error) {
	return c.create(ctx, vaultPath(id))
}

// CreateRandom lets the server pick the vault id.
func (c *Client) CreateRandom(ctx context.Context) (*CreateResponse, error) {
	return c.create(ctx, "/api/vaults")
}

func (c *Client) create(ctx context.Context, path string) (*CreateResponse, error) {
	body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	var out CreateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Fetch returns the stored payload for id: either the creation baseline or
// the last sealed vault pushed.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, vaultPath(id), nil)
}

// Push replaces the payload of id with sealed, signed with secret.
func (c *Client) Push(ctx context.Context, id string, sealed []byte, secret string) error {
	_, err := c.do(ctx, http.MethodPatch, vaultPath(id), crypto.Sign(sealed, []byte(secret)))
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	retries := 0
	if method == http.MethodGet {
		retries = c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := c.retry.wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		out, status, err := c.once(ctx, method, path, body)
		if err == nil {
			return out, nil
		}
		if status == 0 {
			err = &NetworkError{Err: err, URL: c.baseURL + path, Attempt: attempt + 1}
		} else if !retryableStatus(status) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Int("attempt", attempt+1).Msg("request failed")
	}
	return nil, lastErr
}

// once performs a single request. status is zero on transport failure.
func (c *Client) once(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseErrorResponse(resp, data)
	}
	return data, resp.StatusCode, nil
}

func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
