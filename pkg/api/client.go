// Package api is the HTTP client for the listings backend: draft
// ingestion, listing persistence and the paginated listings read path.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/ingest"
	"github.com/jobtrail/jobtrail/pkg/listing"
)

const defaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Client talks to the listings backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c
}

type ingestBody struct {
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Ingest posts a URL, and optionally pasted page content, for extraction.
// Blank content is not sent.
func (c *Client) Ingest(ctx context.Context, req ingest.Request) (listing.Draft, error) {
	body := ingestBody{URL: req.URL, ID: req.ID}
	if strings.TrimSpace(req.Content) != "" {
		body.Content = req.Content
	}

	data, err := c.do(ctx, http.MethodPost, "/api/listings/draft", nil, body, "Failed to ingest listing")
	if err != nil {
		return nil, err
	}
	d, err := listing.DecodeDraft(data)
	if err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

// Save persists a Unique or DuplicateContent draft as a listing.
func (c *Client) Save(ctx context.Context, d listing.Draft) (listing.Listing, error) {
	l, ok := listing.ToListing(d)
	if !ok {
		return listing.Listing{}, errors.New("J012").WithDetail(fmt.Sprintf("draft %q has status %s", d.DraftID(), d.Status()))
	}

	data, err := c.do(ctx, http.MethodPost, "/api/listings", nil, l, "Failed to save listing")
	if err != nil {
		return listing.Listing{}, err
	}
	var saved listing.Listing
	if err := json.Unmarshal(data, &saved); err != nil {
		return listing.Listing{}, fmt.Errorf("decode listing: %w", err)
	}
	return saved, nil
}

// FetchPage reads one page of saved listings.
func (c *Client) FetchPage(ctx context.Context, q listing.PageQuery) (listing.Page[listing.Summary], error) {
	var page listing.Page[listing.Summary]
	data, err := c.do(ctx, http.MethodGet, "/api/listings", q.Values(), nil, "Failed to fetch listings")
	if err != nil {
		return page, err
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return page, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// do sends one JSON request and returns the response body of a 2xx reply.
// Other statuses become J022 errors carrying failMsg.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, failMsg string) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", failMsg, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("backend request failed", "method", method, "path", path, "status", resp.StatusCode)
		e := errors.New("J022").WithDetail(fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, truncate(data)))
		e.Message = failMsg
		return nil, e
	}
	return data, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
