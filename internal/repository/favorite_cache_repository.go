// Package repository 提供了客户端本地状态的存取实现。
package repository

import (
	"errors"

	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/kvstore"
	"pai-chat-client/pkg/log"
)

// favoritesSlot 是收藏缓存使用的存储槽名。
const favoritesSlot = "favorites"

// FavoriteCacheRepository 定义了游客收藏缓存的操作接口。
// 缓存只是登录前的暂存区，不跨设备共享。
type FavoriteCacheRepository interface {
	// Load 返回缓存中的收藏序列，保持插入顺序。
	// 内容缺失或损坏时返回空序列而不是错误。
	Load() []model.FavoriteItem
	// Save 覆盖写入完整的收藏序列。
	Save(items []model.FavoriteItem) error
	// Clear 清空缓存槽。
	Clear() error
}

type favoriteCacheRepository struct {
	store *kvstore.Store
}

// NewFavoriteCacheRepository 创建一个 FavoriteCacheRepository。
func NewFavoriteCacheRepository(store *kvstore.Store) FavoriteCacheRepository {
	return &favoriteCacheRepository{store: store}
}

// Load 返回缓存中的收藏序列。
func (r *favoriteCacheRepository) Load() []model.FavoriteItem {
	var items []model.FavoriteItem
	if err := r.store.Get(favoritesSlot, &items); err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Warnf("读取收藏缓存失败，按空处理: %v", err)
		}
		return []model.FavoriteItem{}
	}
	if items == nil {
		items = []model.FavoriteItem{}
	}
	return items
}

// Save 覆盖写入完整的收藏序列。
func (r *favoriteCacheRepository) Save(items []model.FavoriteItem) error {
	return r.store.Set(favoritesSlot, items)
}

// Clear 清空缓存槽。
func (r *favoriteCacheRepository) Clear() error {
	return r.store.Delete(favoritesSlot)
}
