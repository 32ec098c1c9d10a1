package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGCSEndpoint = "https://storage.googleapis.com"

// GCSSource reads job artifacts from a public Google Cloud Storage
// bucket through the JSON API, anonymously. Prow publishes job logs to
// a world-readable bucket, so no credentials are involved.
type GCSSource struct {
	endpoint   string
	bucket     string
	prefix     string
	httpClient *http.Client
	logger     *slog.Logger
}

// GCSOption configures a GCSSource during construction.
type GCSOption func(*GCSSource)

// WithGCSHTTPClient overrides the default HTTP client.
func WithGCSHTTPClient(c *http.Client) GCSOption {
	return func(s *GCSSource) { s.httpClient = c }
}

// WithGCSEndpoint overrides the API endpoint (tests point this at a
// local server).
func WithGCSEndpoint(endpoint string) GCSOption {
	return func(s *GCSSource) { s.endpoint = strings.TrimSuffix(endpoint, "/") }
}

// WithGCSLogger configures structured logging.
func WithGCSLogger(l *slog.Logger) GCSOption {
	return func(s *GCSSource) { s.logger = l }
}

// NewGCSSource returns a Source serving objects under prefix in bucket.
func NewGCSSource(bucket, prefix string, opts ...GCSOption) (*GCSSource, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	s := &GCSSource{
		endpoint:   defaultGCSEndpoint,
		bucket:     bucket,
		prefix:     strings.TrimSuffix(prefix, "/") + "/",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunPrefix returns the object prefix for a regular job run's
// artifacts: logs/<job>/<build>/artifacts/<job-safe>.
func RunPrefix(jobName, buildID, jobNameSafe string) string {
	return fmt.Sprintf("logs/%s/%s/artifacts/%s", jobName, buildID, jobNameSafe)
}

// RehearsalRunPrefix returns the object prefix for a rehearsal job run,
// which is filed under the pull request rather than the job name.
func RehearsalRunPrefix(prID, jobName, buildID, jobNameSafe string) string {
	return fmt.Sprintf("pr-logs/pull/openshift_release/%s/%s/%s/artifacts/%s", prID, jobName, buildID, jobNameSafe)
}

type gcsObject struct {
	Name string `json:"name"`
}

type gcsListResponse struct {
	Items         []gcsObject `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

// List implements Source, auto-paginating through the object listing.
func (s *GCSSource) List(ctx context.Context) ([]string, error) {
	var paths []string
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("prefix", s.prefix)
		params.Set("fields", "items(name),nextPageToken")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		u := fmt.Sprintf("%s/storage/v1/b/%s/o?%s", s.endpoint, url.PathEscape(s.bucket), params.Encode())

		var page gcsListResponse
		if err := s.getJSON(ctx, u, "list objects", &page); err != nil {
			return nil, err
		}
		for _, obj := range page.Items {
			paths = append(paths, strings.TrimPrefix(obj.Name, s.prefix))
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return paths, nil
}

// Open implements Source via an alt=media object download.
func (s *GCSSource) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	name := url.PathEscape(s.prefix + relPath)
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", s.endpoint, url.PathEscape(s.bucket), name)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("download object: create request: %w", err)
	}
	s.logger.DebugContext(ctx, "GCS download", "object", relPath)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download object: do request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("download object %s: HTTP %d: %s", relPath, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// getJSON executes a GET and decodes the JSON response into dst.
func (s *GCSSource) getJSON(ctx context.Context, u, operation string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	s.logger.DebugContext(ctx, "GCS request", "operation", operation, "url", u)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: HTTP %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}
