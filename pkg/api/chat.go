package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
)

// ChatRequest 是一次聊天提交的出站载荷。
// ConversationID 为 nil 时字段整体省略：游客没有对话 ID，
// 服务端也不会持久化这轮对话。
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// ChatResult 是服务端对一次聊天提交的完整回答。
type ChatResult struct {
	Response string         `json:"response"`
	Sources  []model.Source `json:"sources"`
}

// ChatClient 定义了聊天提交接口。
type ChatClient interface {
	// Submit 发送一轮对话并等待完整回答。
	Submit(ctx context.Context, req ChatRequest) (*ChatResult, error)
	// SubmitStream 通过 WebSocket 发送一轮对话，回答分块到达时逐块
	// 调用 onChunk，最终返回汇总后的完整结果。
	SubmitStream(ctx context.Context, req ChatRequest, onChunk func(delta string)) (*ChatResult, error)
}

type chatClient struct {
	*Client
}

// NewChatClient 创建一个 ChatClient。
func NewChatClient(c *Client) ChatClient {
	return &chatClient{Client: c}
}

// Submit 发送一轮对话并等待完整回答。
func (c *chatClient) Submit(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var result ChatResult
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// streamFrame 是流式通道上的单个事件帧。
type streamFrame struct {
	Type string          `json:"type"` // "sources" | "token" | "done" | "error"
	Data json.RawMessage `json:"data,omitempty"`
}

// SubmitStream 通过 WebSocket 流式提交一轮对话。
func (c *chatClient) SubmitStream(ctx context.Context, req ChatRequest, onChunk func(delta string)) (*ChatResult, error) {
	wsAddr, err := c.wsURL("/chat/stream")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrTransport, err)
	}

	header := http.Header{}
	if token := c.tokenSource(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsAddr, header)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial chat stream: %v", apperr.ErrTransport, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("%w: failed to send chat request: %v", apperr.ErrTransport, err)
	}

	// 上下文取消时主动关闭连接，让读循环尽快退出
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	var sb strings.Builder
	result := &ChatResult{}
	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: failed to read chat stream: %v", apperr.ErrTransport, err)
		}

		switch frame.Type {
		case "sources":
			if err := json.Unmarshal(frame.Data, &result.Sources); err != nil {
				return nil, fmt.Errorf("%w: failed to decode sources frame: %v", apperr.ErrTransport, err)
			}
		case "token":
			var delta string
			if err := json.Unmarshal(frame.Data, &delta); err != nil {
				return nil, fmt.Errorf("%w: failed to decode token frame: %v", apperr.ErrTransport, err)
			}
			sb.WriteString(delta)
			if onChunk != nil {
				onChunk(delta)
			}
		case "error":
			var detail string
			_ = json.Unmarshal(frame.Data, &detail)
			return nil, fmt.Errorf("%w: %s", apperr.ErrTransport, detail)
		case "done":
			result.Response = sb.String()
			return result, nil
		}
	}
}
