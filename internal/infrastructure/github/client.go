package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pricechecker/admin/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Client talks to the GitHub Contents API for a single (repo, path, branch)
// file. The blob SHA returned by Fetch is the version token a later Write
// must present; GitHub rejects a write with a stale SHA, which is the only
// concurrency control this system has.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	repo        string
	filePath    string
	branch      string
	token       string
	rateLimiter *rate.Limiter
	debug       bool
}

// Config holds the settings the client needs.
type Config struct {
	BaseURL  string
	Repo     string // "owner/name"
	FilePath string // path within the repository
	Branch   string
	Token    string // optional personal access token
	Timeout  time.Duration
}

// NewClient creates a GitHub Contents API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	// Authenticated requests get 5000/hour from GitHub, ≈1.39 requests/sec
	limiter := rate.NewLimiter(rate.Limit(1.39), 10)

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		repo:        cfg.Repo,
		filePath:    cfg.FilePath,
		branch:      cfg.Branch,
		token:       cfg.Token,
		rateLimiter: limiter,
	}
}

// SetDebug enables verbose request logging.
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, c.filePath)
}

// newRequest builds a request with the authorization header attached when a
// token is configured; without one, requests go out unauthenticated (public
// repositories only, low rate limits).
func (c *Client) newRequest(ctx context.Context, method, reqURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "pricechecker-admin/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	return req, nil
}

// contentsResponse is the subset of the Contents API payload this client uses.
type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// writeResponse is the payload of a successful contents PUT.
type writeResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Fetch reads the catalog file from GitHub. It returns the parsed catalog and
// the blob SHA to be used as the version token for a subsequent write. Any
// non-200 response maps to ErrCatalogUnavailable. Single attempt, no retry.
func (c *Client) Fetch(ctx context.Context) (*domain.Catalog, string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Add("ref", c.branch)
	reqURL := fmt.Sprintf("%s?%s", c.contentsURL(), params.Encode())

	if c.debug {
		log.Printf("[GitHub] GET %s", reqURL)
	}

	req, err := c.newRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("[GitHub] fetch failed - status: %d, body: %s", resp.StatusCode, truncate(body, 512))
		return nil, "", fmt.Errorf("%w: status %d", domain.ErrCatalogUnavailable, resp.StatusCode)
	}

	var contents contentsResponse
	if err := json.Unmarshal(body, &contents); err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode response: %v", domain.ErrCatalogUnavailable, err)
	}

	decoded, err := decodeContent(contents)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	catalog, err := domain.ParseCSV(strings.NewReader(decoded))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	if c.debug {
		log.Printf("[GitHub] fetched %d rows, sha %s", len(catalog.Rows), contents.SHA)
	}
	return catalog, contents.SHA, nil
}

// decodeContent base64-decodes the file body. The contents endpoint wraps
// base64 at 60 columns, so newlines have to be stripped first.
func decodeContent(contents contentsResponse) (string, error) {
	if contents.Encoding != "" && contents.Encoding != "base64" {
		return "", fmt.Errorf("unexpected content encoding %q", contents.Encoding)
	}
	raw := strings.ReplaceAll(contents.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode content: %v", err)
	}
	return string(decoded), nil
}

// writeRequest is the body of a contents PUT.
type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha"`
}

// Write serializes the catalog to CSV and overwrites the remote file in a new
// commit. The sha must be the version token from the most recent Fetch; a
// stale token yields ErrWriteConflict. On success the new blob SHA is
// returned. Single attempt, no retry.
func (c *Client) Write(ctx context.Context, catalog *domain.Catalog, sha, message string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	csvText, err := catalog.EncodeCSV()
	if err != nil {
		return "", err
	}

	payload := writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(csvText)),
		Branch:  c.branch,
		SHA:     sha,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	if c.debug {
		log.Printf("[GitHub] PUT %s (%d rows, sha %s)", c.contentsURL(), len(catalog.Rows), sha)
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.contentsURL(), bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// fall through to decode
	case http.StatusConflict, http.StatusUnprocessableEntity:
		log.Printf("[GitHub] write conflict - status: %d, body: %s", resp.StatusCode, truncate(body, 512))
		return "", fmt.Errorf("%w (status %d)", domain.ErrWriteConflict, resp.StatusCode)
	default:
		log.Printf("[GitHub] write failed - status: %d, body: %s", resp.StatusCode, truncate(body, 512))
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrWriteFailed, resp.StatusCode, apiErrorMessage(body))
	}

	var result writeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Content.SHA, nil
}

// apiErrorMessage pulls the "message" field out of a GitHub error body so the
// operator sees the API's own explanation rather than raw JSON.
func apiErrorMessage(body []byte) string {
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Message != "" {
		return detail.Message
	}
	return string(truncate(body, 256))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
