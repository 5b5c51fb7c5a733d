package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client calls the live control API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates an API client for the server at base (e.g. http://localhost:3000).
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env response.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: "unreadable response"}
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Start opens a stream for host.
func (c *Client) Start(ctx context.Context, host string, notifyTokens []string) (models.LiveStream, error) {
	var s models.LiveStream
	err := c.do(ctx, http.MethodPost, "/live/start", map[string]any{"host_username": host, "notify_tokens": notifyTokens}, &s)
	return s, err
}

// End ends a stream.
func (c *Client) End(ctx context.Context, streamID string) error {
	return c.do(ctx, http.MethodPost, "/live/end", map[string]string{"stream_id": streamID}, nil)
}

// List returns live streams, newest first.
func (c *Client) List(ctx context.Context) ([]models.LiveStream, error) {
	var list []models.LiveStream
	err := c.do(ctx, http.MethodGet, "/live/list", nil, &list)
	return list, err
}

// Get returns one stream.
func (c *Client) Get(ctx context.Context, streamID string) (models.LiveStream, error) {
	var s models.LiveStream
	err := c.do(ctx, http.MethodGet, "/live/"+url.PathEscape(streamID), nil, &s)
	return s, err
}

// Comments returns the latest comments of a stream.
func (c *Client) Comments(ctx context.Context, streamID string, limit int) ([]models.Comment, error) {
	var out struct {
		Comments []models.Comment `json:"comments"`
	}
	path := "/live/" + url.PathEscape(streamID) + "/comments"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Comments, err
}

// Token fetches a media token.
func (c *Client) Token(ctx context.Context, channel, uid, role string) (string, error) {
	q := url.Values{"channel": {channel}}
	if uid != "" {
		q.Set("uid", uid)
	}
	if role != "" {
		q.Set("role", role)
	}
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodGet, "/rtc-token?"+q.Encode(), nil, &out)
	return out.Token, err
}
