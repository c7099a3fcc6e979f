package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/log"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id"`
}

type chatResponse struct {
	Response string         `json:"response"`
	Sources  []model.Source `json:"sources"`
}

// answer 生成一条固定格式的回答。开发后端没有真实模型，
// 回答只用于联调客户端的管线与持久化路径。
func answer(message string) chatResponse {
	return chatResponse{
		Response: fmt.Sprintf("[dev] 收到你的问题：%s", message),
		Sources: []model.Source{
			{Title: "Dev Knowledge Base", Source: "https://localhost/dev-kb"},
		},
	}
}

// persistTurn 把一轮对话写入对话历史。仅在携带 conversation_id
// 且调用方已认证时发生；游客轮次不持久化。
func (s *Server) persistTurn(c *gin.Context, convID int64, question string, resp chatResponse) error {
	uid := userID(c)
	if uid == 0 {
		return fmt.Errorf("%w: conversation_id needs a signed-in session", apperr.ErrUnauthorized)
	}
	now := time.Now()
	msgs := []model.Message{
		{Role: model.RoleUser, Content: question, CreatedAt: now},
		{Role: model.RoleAssistant, Content: resp.Response, Sources: resp.Sources, CreatedAt: now},
	}
	return s.store.AppendMessages(c.Request.Context(), uid, convID, msgs)
}

// chat 处理非流式聊天提交。
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, fmt.Errorf("%w: message is required", apperr.ErrValidation))
		return
	}

	resp := answer(req.Message)
	if req.ConversationID != nil {
		if err := s.persistTurn(c, *req.ConversationID, req.Message, resp); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// streamFrame 是流式通道上的单个事件帧，与客户端约定一致。
type streamFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// chatStream 通过 WebSocket 处理流式聊天提交。
// 帧序列：sources -> token* -> done；出错时发送 error 帧后关闭。
func (s *Server) chatStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(streamFrame{Type: "error", Data: "invalid chat request"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		_ = conn.WriteJSON(streamFrame{Type: "error", Data: "message is required"})
		return
	}

	resp := answer(req.Message)

	if err := conn.WriteJSON(streamFrame{Type: "sources", Data: resp.Sources}); err != nil {
		return
	}
	// 按词切分模拟流式输出
	words := strings.SplitAfter(resp.Response, " ")
	for _, w := range words {
		if err := conn.WriteJSON(streamFrame{Type: "token", Data: w}); err != nil {
			return
		}
	}

	if req.ConversationID != nil {
		if err := s.persistTurn(c, *req.ConversationID, req.Message, resp); err != nil {
			_ = conn.WriteJSON(streamFrame{Type: "error", Data: err.Error()})
			return
		}
	}
	_ = conn.WriteJSON(streamFrame{Type: "done"})
}
