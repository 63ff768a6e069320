// internal/notion/client.go
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

var (
	ErrUnreachable  = errors.New("notion api unreachable")
	ErrUnauthorized = errors.New("notion token rejected")
	ErrNotFound     = errors.New("notion object not found or not shared with the integration")
	ErrRateLimited  = errors.New("notion rate limit exceeded")
	ErrBadEndpoint  = errors.New("invalid notion endpoint")
)

const defaultErrorMessage = "Notion API Error"

// APIError is a non-2xx Notion response.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = defaultErrorMessage
	}
	return fmt.Sprintf("notion: %s (HTTP %d)", message, e.Status)
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// UserMessage is what the relay reports back: Notion's message, or a
// generic one.
func (e *APIError) UserMessage() string {
	if e.Message == "" {
		return defaultErrorMessage
	}
	return e.Message
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Version    string
	RateLimit  float64 // requests per second, shared by all tokens
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the Notion REST API. Every call carries the caller's bearer
// token and the fixed Notion-Version header. There are no retries.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client. Zero options fall back to public defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com/v1"
	}
	version := opts.Version
	if version == "" {
		version = "2022-06-28"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = opts.Timeout
		if httpClient.Timeout == 0 {
			httpClient.Timeout = 30 * time.Second
		}
	}

	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		baseURL:    baseURL,
		version:    version,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// GetPage fetches GET /pages/{id}.
func (c *Client) GetPage(ctx context.Context, token, pageID string) (*Page, error) {
	var page Page
	if err := c.doJSON(ctx, token, http.MethodGet, "/pages/"+url.PathEscape(pageID), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListBlockChildren fetches one page of GET /blocks/{id}/children.
func (c *Client) ListBlockChildren(ctx context.Context, token, blockID, cursor string) (*BlockList, error) {
	endpoint := "/blocks/" + url.PathEscape(blockID) + "/children?page_size=100"
	if cursor != "" {
		endpoint += "&start_cursor=" + url.QueryEscape(cursor)
	}
	var list BlockList
	if err := c.doJSON(ctx, token, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListAllBlockChildren follows next_cursor until has_more is false.
func (c *Client) ListAllBlockChildren(ctx context.Context, token, blockID string) ([]Block, error) {
	var (
		blocks []Block
		cursor string
	)
	for {
		list, err := c.ListBlockChildren(ctx, token, blockID, cursor)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, list.Results...)
		if !list.HasMore || list.NextCursor == nil || *list.NextCursor == "" {
			return blocks, nil
		}
		cursor = *list.NextCursor
	}
}

// GetDatabase fetches GET /databases/{id}; properties keep source order.
func (c *Client) GetDatabase(ctx context.Context, token, databaseID string) (*Database, error) {
	var db Database
	if err := c.doJSON(ctx, token, http.MethodGet, "/databases/"+url.PathEscape(databaseID), nil, &db); err != nil {
		return nil, err
	}
	if db.Properties == nil {
		db.Properties = core.RawSchema{}
	}
	return &db, nil
}

// CreatePage sends POST /pages.
func (c *Client) CreatePage(ctx context.Context, token string, req core.CreatePageRequest) (*CreatedPage, error) {
	var page CreatedPage
	if err := c.doJSON(ctx, token, http.MethodPost, "/pages", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetSelf fetches GET /users/me; used to validate a token.
func (c *Client) GetSelf(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.doJSON(ctx, token, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RelayResponse is the relay contract: data on success, error otherwise.
type RelayResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var relayMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Relay forwards an arbitrary API call. Transport and API failures are
// reported in the response, not as an error; the error return is for
// requests that were never sent.
func (c *Client) Relay(ctx context.Context, token, method, endpoint string, body json.RawMessage) (RelayResponse, error) {
	method = strings.ToUpper(method)
	if !relayMethods[method] {
		return RelayResponse{}, fmt.Errorf("%w: method %q not allowed", ErrBadEndpoint, method)
	}
	if !strings.HasPrefix(endpoint, "/") || strings.Contains(endpoint, "://") || strings.Contains(endpoint, "..") {
		return RelayResponse{}, fmt.Errorf("%w: %q", ErrBadEndpoint, endpoint)
	}

	var payload any
	if len(body) > 0 && string(body) != "null" {
		payload = body
	}
	data, err := c.do(ctx, token, method, endpoint, payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return RelayResponse{Success: false, Error: apiErr.UserMessage()}, nil
		}
		return RelayResponse{Success: false, Error: err.Error()}, nil
	}
	return RelayResponse{Success: true, Data: data}, nil
}

func (c *Client) doJSON(ctx context.Context, token, method, endpoint string, body, out any) error {
	data, err := c.do(ctx, token, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("notion: decoding %s %s: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("notion: failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("notion: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		customLog.Warnf("Notion: %s %s failed: %v", method, endpoint, err)
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}
	customLog.Debugf("Notion: %s %s -> %d in %s", method, endpoint, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
		customLog.Warnf("Notion: %s %s returned %d: %s", method, endpoint, resp.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	return data, nil
}
