// Package model 包含了客户端的数据模型定义。
package model

// SessionMode 表示当前会话的认证状态。
type SessionMode string

const (
	// ModeGuest 未登录状态：收藏仅存在于本地缓存，对话不持久化。
	ModeGuest SessionMode = "guest"
	// ModeAuthenticated 已登录状态：远端集合是唯一数据源。
	ModeAuthenticated SessionMode = "authenticated"
)

// Session 表示进程内唯一的客户端会话。
// Guest -> Authenticated 的转换会触发一次收藏迁移；
// Authenticated -> Guest 只清空内存状态。
type Session struct {
	Mode  SessionMode
	Token string
	User  *UserProfile
}

// UserProfile 是服务端返回的当前用户信息。
type UserProfile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}
