package model

import "time"

// DefaultFavoriteTitle 是收藏标题为空时使用的默认标题（"无标题"）。
// 该值与服务端约定一致，按原样传输。
const DefaultFavoriteTitle = "제목 없음"

// FavoriteItem 代表一条收藏项。
//
// ID 在两个存储层各自唯一：本地缓存中由客户端按时间生成，跨设备不保证唯一，
// 迁移到远端时被丢弃，远端签发权威 ID。
type FavoriteItem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
