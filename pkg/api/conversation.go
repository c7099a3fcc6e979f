package api

import (
	"context"
	"fmt"
	"net/http"

	"pai-chat-client/internal/model"
)

// ConversationClient 定义了对话 CRUD 的操作接口。
type ConversationClient interface {
	List(ctx context.Context) ([]model.Conversation, error)
	Create(ctx context.Context, title string, folderID *int64) (*model.Conversation, error)
	Get(ctx context.Context, id int64) (*model.Conversation, error)
	Update(ctx context.Context, id int64, title string) (*model.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

type conversationClient struct {
	*Client
}

// NewConversationClient 创建一个 ConversationClient。
func NewConversationClient(c *Client) ConversationClient {
	return &conversationClient{Client: c}
}

type createConversationRequest struct {
	Title    string `json:"title"`
	FolderID *int64 `json:"folder_id,omitempty"`
}

type updateConversationRequest struct {
	Title string `json:"title"`
}

// List 返回当前用户的对话列表，按服务端给定顺序（通常为最近更新优先）。
func (c *conversationClient) List(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Create 创建一个新对话。
func (c *conversationClient) Create(ctx context.Context, title string, folderID *int64) (*model.Conversation, error) {
	var conv model.Conversation
	req := createConversationRequest{Title: title, FolderID: folderID}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations/", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Get 返回一个对话及其完整消息序列。
func (c *conversationClient) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/conversations/%d", id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Update 修改对话标题。
func (c *conversationClient) Update(ctx context.Context, id int64, title string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/conversations/%d", id), updateConversationRequest{Title: title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Delete 删除一个对话。
func (c *conversationClient) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/conversations/%d", id), nil, nil)
}
