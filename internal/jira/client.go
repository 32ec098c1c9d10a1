// Package jira is a minimal client for the Jira REST API v2, covering
// the three operations the reconciler needs: search, create issue, and
// add comment, plus an auth probe.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is a high-level client for one Jira instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// New creates a Client for the given Jira instance. The bearerToken is
// sent as an Authorization header on every request (PAT auth).
func New(baseURL, bearerToken string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("jira: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		token:      bearerToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// doJSON executes an HTTP request and decodes the JSON response into
// dst. Error statuses are returned as *APIError.
func (c *Client) doJSON(ctx context.Context, method, url, operation string, body any, dst any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "API request", "operation", operation, "method", method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "API response", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		var errBody ErrorBody
		if json.Unmarshal(respBody, &errBody) == nil && len(errBody.Messages()) > 0 {
			return newAPIError(operation, resp.StatusCode, strings.Join(errBody.Messages(), "; "))
		}
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = resp.Status
		}
		return newAPIError(operation, resp.StatusCode, msg)
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("%s: decode response: %w", operation, err)
		}
	}
	return nil
}

// Myself returns the authenticated user, resolving it from the token.
// Used as the run's authentication precondition check.
func (c *Client) Myself(ctx context.Context) (*User, error) {
	u := fmt.Sprintf("%s/rest/api/2/myself", c.baseURL)
	var user User
	if err := c.doJSON(ctx, "GET", u, "get myself", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Search runs a JQL query and returns the matching issues.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int) (*SearchResult, error) {
	u := fmt.Sprintf("%s/rest/api/2/search", c.baseURL)
	req := searchRequest{JQL: jql, Fields: fields, MaxResults: maxResults}
	var result SearchResult
	if err := c.doJSON(ctx, "POST", u, "search issues", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, fields IssueFields) (*CreatedIssue, error) {
	u := fmt.Sprintf("%s/rest/api/2/issue", c.baseURL)
	var created CreatedIssue
	if err := c.doJSON(ctx, "POST", u, "create issue", map[string]any{"fields": fields}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddComment appends a comment to an existing issue.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	u := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.baseURL, issueKey)
	return c.doJSON(ctx, "POST", u, "add comment", map[string]string{"body": body}, nil)
}

// ReadAPIKey reads the first line of a token file and returns it trimmed.
func ReadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	return line, nil
}
