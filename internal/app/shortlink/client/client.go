// Package client talks to a cutl server over HTTP. cmd/cutl is its only user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cutl.local/internal/app/shortlink"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultServer = "https://cutl.my.id"

// APIError 是非 2xx 响应；Message 优先取服务端 {"error": ...}
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type ShortenRequest struct {
	URL  string  `json:"url"`
	Code *string `json:"code,omitempty"`
	TTL  *string `json:"ttl,omitempty"`
}

type ShortenResponse struct {
	Code      string `json:"code"`
	ShortURL  string `json:"short_url"`
	ExpiresAt int64  `json:"expires_at"`
}

type Client struct {
	server string
	token  string
	http   *http.Client
}

// New 的 token 为空时不带 Authorization 头
func New(server, token string) *Client {
	if server == "" {
		server = DefaultServer
	}
	return &Client{
		server: strings.TrimRight(server, "/"),
		token:  token,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Shorten 调 POST /shorten（需要 token 的那个入口）
func (c *Client) Shorten(ctx context.Context, req ShortenRequest) (ShortenResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ShortenResponse{}, err
	}
	var out ShortenResponse
	err = c.do(ctx, http.MethodPost, "/shorten", bytes.NewReader(body), &out)
	return out, err
}

// Stats 调 GET /analytics/{code}
func (c *Client) Stats(ctx context.Context, code string) (shortlink.Report, error) {
	var out shortlink.Report
	err := c.do(ctx, http.MethodGet, "/analytics/"+code, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.server, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("server returned HTTP %d", resp.StatusCode)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse server response: %w", err)
	}
	return nil
}
