// Package api 提供了访问聊天后端各组远程接口的客户端。
// 所有客户端共享同一个 Client 基座：基础 URL、超时、凭证来源，
// 以及 HTTP 状态码到错误分类的映射。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pai-chat-client/internal/apperr"
)

// TokenSource 返回当前会话的 bearer token，游客态返回空串。
type TokenSource func() string

// Client 是所有远程客户端共享的基座。
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource TokenSource
}

// NewClient 创建一个 Client。
// tokenSource 为 nil 时所有请求都不携带凭证。
func NewClient(baseURL string, timeout time.Duration, tokenSource TokenSource) *Client {
	if tokenSource == nil {
		tokenSource = func() string { return "" }
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: tokenSource,
	}
}

// errorBody 对应服务端错误响应的 {"detail": "..."} 结构。
type errorBody struct {
	Detail string `json:"detail"`
}

// statusError 将非 2xx 响应映射为统一的错误分类。
func statusError(statusCode int, body []byte) error {
	var kind error
	switch {
	case statusCode == http.StatusUnauthorized:
		kind = apperr.ErrUnauthorized
	case statusCode == http.StatusNotFound:
		kind = apperr.ErrNotFound
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		kind = apperr.ErrValidation
	default:
		kind = apperr.ErrTransport
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		return fmt.Errorf("%w: %s (status %d)", kind, eb.Detail, statusCode)
	}
	return fmt.Errorf("%w: server returned status %d", kind, statusCode)
}

// doJSON 发送一个 JSON 请求并将响应解码到 out。
// reqBody 为 nil 时不携带请求体；out 为 nil 时丢弃响应体。
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokenSource(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", apperr.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", apperr.ErrTransport, err)
		}
	}
	return nil
}

// wsURL 将基础 URL 转换为对应的 WebSocket 地址。
func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
