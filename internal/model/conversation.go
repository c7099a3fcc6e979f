package model

import "time"

// Conversation 代表一个已持久化的对话。
// 仅已登录会话拥有对话；游客至多有一个未保存的临时对话。
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	FolderID  *int64    `json:"folder_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}
