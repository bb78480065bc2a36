// Package drive is a thin client for the Google Drive v3 REST API,
// covering folder listing, metadata, media download and export.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/metrics"
)

const defaultBaseURL = "https://www.googleapis.com/drive/v3"

// Config holds Drive API connection settings.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client wraps HTTP access to the Drive API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Drive client. A bearer token or API key must be set.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" && cfg.APIKey == "" {
		return nil, &AuthError{Message: "no token or api key configured"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ListChildren fetches one page of a folder's children. Returns the items
// and the continuation token for the next page ("" when exhausted).
func (c *Client) ListChildren(ctx context.Context, q domain.ListQuery) ([]*domain.File, string, error) {
	filter := fmt.Sprintf("'%s' in parents", q.FolderID)
	if !q.IncludeTrashed {
		filter += " and trashed=false"
	}

	fields := q.Fields
	if fields == "" {
		fields = domain.DefaultFields
	}

	params := url.Values{}
	params.Set("q", filter)
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	params.Set("fields", fmt.Sprintf("nextPageToken,files(%s)", fields))
	if q.OrderBy != "" {
		params.Set("orderBy", q.OrderBy)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	var list struct {
		NextPageToken string         `json:"nextPageToken"`
		Files         []*domain.File `json:"files"`
	}
	if err := c.getJSON(ctx, "files.list", "/files", params, &list); err != nil {
		return nil, "", err
	}
	return list.Files, list.NextPageToken, nil
}

// GetFile fetches metadata for a single file or folder.
func (c *Client) GetFile(ctx context.Context, id, fields string) (*domain.File, error) {
	if fields == "" {
		fields = domain.DefaultFields
	}
	params := url.Values{}
	params.Set("fields", fields)

	var f domain.File
	if err := c.getJSON(ctx, "files.get", "/files/"+url.PathEscape(id), params, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Download streams a binary file's content into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	params := url.Values{}
	params.Set("alt", "media")
	return c.getMedia(ctx, "files.download", "/files/"+url.PathEscape(id), params, w)
}

// Export converts a Google Workspace file to the given MIME type and
// streams the result into w.
func (c *Client) Export(ctx context.Context, id, mimeType string, w io.Writer) (int64, error) {
	params := url.Values{}
	params.Set("mimeType", mimeType)
	return c.getMedia(ctx, "files.export", "/files/"+url.PathEscape(id)+"/export", params, w)
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	resp, err := c.get(ctx, op, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) getMedia(ctx context.Context, op, path string, params url.Values, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, op, path, params)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s body: %w", op, err)
	}
	return n, nil
}

// get issues the request and maps non-2xx responses to APIError.
// The caller owns the response body on success.
func (c *Client) get(ctx context.Context, op, path string, params url.Values) (*http.Response, error) {
	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	metrics.APICallsTotal.WithLabelValues(op).Inc()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues(op, "transport").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := c.parseError(resp)
	metrics.APIErrorsTotal.WithLabelValues(op, strconv.Itoa(apiErr.StatusCode)).Inc()
	return nil, apiErr
}

// parseError builds an APIError from an error response, capturing the
// Retry-After header when the server sends one.
func (c *Client) parseError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Error.Message != "" {
			apiErr.Message = body.Error.Message
		}
		if len(body.Error.Errors) > 0 {
			apiErr.Reason = body.Error.Errors[0].Reason
		}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}

	return apiErr
}
