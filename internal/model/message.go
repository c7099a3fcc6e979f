package model

import "time"

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DeliveryState 是用户消息的投递状态。
type DeliveryState string

const (
	// DeliveryPending 已在本地显示，等待服务端确认。
	DeliveryPending DeliveryState = "pending"
	// DeliveryConfirmed 服务端已确认。助手消息一律以该状态创建，
	// 因为它们只会从成功响应中物化。
	DeliveryConfirmed DeliveryState = "confirmed"
	// DeliveryFailed 发送失败。失败的消息原位保留，等待用户手动重试。
	DeliveryFailed DeliveryState = "failed"
)

// Source 是助手回答引用的资料来源。
type Source struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Message 代表对话中的一条消息。
// 消息在对话内严格按发起顺序排列；投递状态只原位更新，从不改变位置。
type Message struct {
	Role          string        `json:"role"`
	Content       string        `json:"content"`
	Sources       []Source      `json:"sources,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	DeliveryState DeliveryState `json:"-"`
}
