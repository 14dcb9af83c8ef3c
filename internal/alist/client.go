// Package alist talks to the directory listing API of an AList compatible
// file server.
package alist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alistmirror/internal/models"
)

const (
	listEndpoint = "/api/fs/list"
	getEndpoint  = "/api/fs/get"

	successCode = 200
)

type Options struct {
	BaseURL        string
	Password       string
	Token          string
	UserAgent      string
	AcceptLanguage string

	// Timeout bounds one metadata request including reading the body.
	// Default: 10s
	Timeout time.Duration

	// RetryAttempts is the total number of attempts for transient statuses.
	// Default: 3
	RetryAttempts   int
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration

	// HTTPClient replaces the default client, mostly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Timeout:         10 * time.Second,
		RetryAttempts:   3,
		RetryMinBackoff: 500 * time.Millisecond,
		RetryMaxBackoff: 10 * time.Second,
	}
}

type Client struct {
	baseURL  string
	password string
	headers  http.Header
	http     requester
	logger   *slog.Logger
}

func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.RetryMinBackoff <= 0 {
		opts.RetryMinBackoff = defaults.RetryMinBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = defaults.RetryMaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		baseURL:  baseURL,
		password: opts.Password,
		headers:  buildHeaders(baseURL, opts),
		http:     newRetryRequester(httpClient, opts.RetryAttempts, opts.RetryMinBackoff, opts.RetryMaxBackoff, opts.Logger),
		logger:   opts.Logger,
	}
}

func buildHeaders(baseURL string, opts Options) http.Header {
	h := http.Header{}
	if opts.UserAgent != "" {
		h.Set("User-Agent", opts.UserAgent)
	}
	h.Set("Accept", "application/json, text/plain, */*")
	if opts.AcceptLanguage != "" {
		h.Set("Accept-Language", opts.AcceptLanguage)
	}
	h.Set("Referer", baseURL+"/")
	h.Set("Origin", baseURL)
	if opts.Token != "" {
		h.Set("Authorization", opts.Token)
	}
	return h
}

// Headers returns a copy of the browser identity headers, so content
// downloads look like the same client. Download URLs often point at third
// party storage, so the API token is never part of it.
func (c *Client) Headers() http.Header {
	h := c.headers.Clone()
	h.Del("Accept")
	h.Del("Authorization")
	return h
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type listRequest struct {
	Path     string `json:"path"`
	Password string `json:"password"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
	Refresh  bool   `json:"refresh"`
}

type listData struct {
	Content []listItem `json:"content"`
	Total   int64      `json:"total"`
}

type listItem struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Modified string `json:"modified"`
}

type getRequest struct {
	Path     string `json:"path"`
	Password string `json:"password"`
}

// List returns the children of remotePath in the order the server sends them.
// An empty directory yields an empty slice and no error.
func (c *Client) List(ctx context.Context, remotePath string) ([]models.RemoteEntry, error) {
	var resp envelope[*listData]
	req := listRequest{
		Path:     remotePath,
		Password: c.password,
		Page:     1,
		PerPage:  0,
		Refresh:  false,
	}
	if err := c.post(ctx, "list", listEndpoint, remotePath, req, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil || len(resp.Data.Content) == 0 {
		return []models.RemoteEntry{}, nil
	}

	entries := make([]models.RemoteEntry, 0, len(resp.Data.Content))
	for _, item := range resp.Data.Content {
		entries = append(entries, models.RemoteEntry{
			Name:     item.Name,
			IsDir:    item.IsDir,
			Size:     item.Size,
			Modified: parseModified(item.Modified),
		})
	}
	return entries, nil
}

// Resolve fetches the download metadata of a single file. A file the server
// will not hand out a raw URL for comes back with an empty DownloadURL.
func (c *Client) Resolve(ctx context.Context, remotePath string) (models.RemoteFileMetadata, error) {
	var resp envelope[*models.RemoteFileMetadata]
	req := getRequest{Path: remotePath, Password: c.password}
	if err := c.post(ctx, "get", getEndpoint, remotePath, req, &resp); err != nil {
		return models.RemoteFileMetadata{}, err
	}
	if resp.Data == nil {
		return models.RemoteFileMetadata{}, &ProtocolError{Op: "get", Path: remotePath, Code: resp.Code, Message: "response has no data"}
	}
	return *resp.Data, nil
}

func (c *Client) post(ctx context.Context, op, endpoint, remotePath string, payload any, out interface {
	code() int
	message() string
}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header = c.headers.Clone()
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	c.logger.Debug("alist request", "op", op, "path", remotePath)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Path: remotePath, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Path: remotePath, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := extractMessage(raw)
		if mentionsPassword(message) {
			return &AuthError{Op: op, Path: remotePath, Message: message}
		}
		return &ProtocolError{Op: op, Path: remotePath, HTTPStatus: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Path: remotePath, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}

	if out.code() != successCode {
		if mentionsPassword(out.message()) {
			return &AuthError{Op: op, Path: remotePath, Message: out.message()}
		}
		return &ProtocolError{Op: op, Path: remotePath, HTTPStatus: resp.StatusCode, Code: out.code(), Message: out.message()}
	}
	return nil
}

func (e *envelope[T]) code() int       { return e.Code }
func (e *envelope[T]) message() string { return e.Message }

// extractMessage pulls the message field out of an error body, falling back
// to the trimmed body text.
func extractMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func parseModified(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
