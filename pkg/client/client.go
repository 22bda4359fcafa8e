package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "http://127.0.0.1:8787/api"

// Client talks to a running glassd daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	c.logger.Debug("Daemon reachability check", "reachable", err == nil, "error", err)
	return err == nil
}

// EntityStarting reports that an entity is starting. The result tells
// whether the daemon launched an overlay.
func (c *Client) EntityStarting(ctx context.Context, entityID string, tags []string) (StartingResult, error) {
	var res StartingResult
	err := c.do(ctx, http.MethodPost, "/entities/"+url.PathEscape(entityID)+"/starting", StartingRequest{Tags: tags}, &res)
	return res, err
}

// EntityStopped reports that an entity stopped.
func (c *Client) EntityStopped(ctx context.Context, entityID string) error {
	return c.do(ctx, http.MethodPost, "/entities/"+url.PathEscape(entityID)+"/stopped", nil, nil)
}

// RefreshProfiles asks the daemon to sync profile tags. On failure the
// partial result is returned with the error.
func (c *Client) RefreshProfiles(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	err := c.do(ctx, http.MethodPost, "/profiles/refresh", nil, &res)
	return res, err
}

// Profiles lists the daemon's profiles directory.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	var res []Profile
	err := c.do(ctx, http.MethodGet, "/profiles", nil, &res)
	return res, err
}

// Overlays lists the running overlays.
func (c *Client) Overlays(ctx context.Context) ([]OverlayStatus, error) {
	var res []OverlayStatus
	err := c.do(ctx, http.MethodGet, "/overlays", nil, &res)
	return res, err
}

// Overlay returns the overlay of one entity.
func (c *Client) Overlay(ctx context.Context, entityID string) (OverlayStatus, error) {
	var res OverlayStatus
	err := c.do(ctx, http.MethodGet, "/overlays/"+url.PathEscape(entityID), nil, &res)
	return res, err
}

// do sends body as JSON and decodes the answer into out. Error answers are
// decoded into out as well when they carry a body of that shape.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return c.handleErrorResponse(resp.StatusCode, raw, out)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(code int, raw []byte, out any) error {
	if out != nil {
		_ = json.Unmarshal(raw, out)
	}
	var errorResp ErrorResponse
	if err := json.Unmarshal(raw, &errorResp); err != nil {
		c.logger.Debug("Failed to decode error response", "status", code)
		return &APIError{StatusCode: code}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", code)
	return &APIError{StatusCode: code, Message: errorResp.Error}
}
