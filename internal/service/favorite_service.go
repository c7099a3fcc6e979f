package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/internal/repository"
	"pai-chat-client/pkg/api"
	"pai-chat-client/pkg/log"
)

// FavoriteService 按会话模式在两个存储层之间路由收藏操作：
// 游客态走本地缓存，已登录态走远端集合。
// Guest -> Authenticated 转换时它作为同步引擎把缓存迁移到远端。
type FavoriteService interface {
	FavoriteSyncEngine

	// List 返回当前层的收藏，最新的排在前面。
	List(ctx context.Context) ([]model.FavoriteItem, error)
	// Add 新增收藏。URL 必填；标题为空时使用默认标题。
	Add(ctx context.Context, title, url string) (*model.FavoriteItem, error)
	// Update 修改收藏的标题和 URL。
	Update(ctx context.Context, id int64, title, url string) (*model.FavoriteItem, error)
	// Delete 删除收藏。
	Delete(ctx context.Context, id int64) error

	// Err 返回最近一次收藏操作的错误，ClearErr 清除它。
	Err() error
	ClearErr()
	Subscribe(fn func()) (cancel func())
}

type favoriteService struct {
	mu     sync.Mutex
	errVal error
	// syncDone 在迁移进行中非 nil，迁移结束时关闭。
	// 已登录态的操作先在它上面排队，避免与批量迁移竞争。
	syncDone chan struct{}

	cache   repository.FavoriteCacheRepository
	remote  api.FavoriteClient
	session SessionReader

	notifier notifier
}

// NewFavoriteService 创建一个 FavoriteService。
func NewFavoriteService(cache repository.FavoriteCacheRepository, remote api.FavoriteClient, session SessionReader) FavoriteService {
	return &favoriteService{
		cache:   cache,
		remote:  remote,
		session: session,
	}
}

// SyncFromCache 把本地缓存中的收藏按插入顺序逐条迁移到远端，
// 全部成功后才清空缓存。任何一条失败即停止，缓存原样保留，
// 下次认证时整批重试（接受 at-least-once 语义，重复项可容忍）。
// 同一时刻至多一次迁移在进行；进行中再次触发被抑制，不排队。
func (s *favoriteService) SyncFromCache(ctx context.Context) error {
	s.mu.Lock()
	if s.syncDone != nil {
		s.mu.Unlock()
		log.Debugf("收藏迁移已在进行中，本次触发被抑制")
		return nil
	}
	done := make(chan struct{})
	s.syncDone = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncDone = nil
		s.mu.Unlock()
		close(done)
	}()

	// 一次性快照，迁移期间缓存不会被其他写方触碰
	items := s.cache.Load()
	if len(items) == 0 {
		return nil
	}

	for i, item := range items {
		if _, err := s.remote.Create(ctx, item.Title, item.URL); err != nil {
			return fmt.Errorf("failed to migrate favorite %d/%d: %w", i+1, len(items), err)
		}
	}

	if err := s.cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear favorite cache after migration: %w", err)
	}
	log.Infof("已将 %d 条本地收藏迁移到远端集合", len(items))
	s.notifier.notify()
	return nil
}

// waitForSync 在迁移进行中时阻塞，直到迁移结束或 ctx 取消。
func (s *favoriteService) waitForSync(ctx context.Context) error {
	s.mu.Lock()
	done := s.syncDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List 返回当前层的收藏，最新的排在前面。
func (s *favoriteService) List(ctx context.Context) ([]model.FavoriteItem, error) {
	if s.session.Mode() == model.ModeAuthenticated {
		if err := s.waitForSync(ctx); err != nil {
			return nil, err
		}
		items, err := s.remote.List(ctx)
		if err != nil {
			s.setErr(err)
			return nil, err
		}
		return items, nil
	}

	// 缓存按插入顺序存储，展示时最新的在前
	items := s.cache.Load()
	out := make([]model.FavoriteItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

// Add 新增收藏。
func (s *favoriteService) Add(ctx context.Context, title, url string) (*model.FavoriteItem, error) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if url == "" {
		err := fmt.Errorf("%w: url is required", apperr.ErrValidation)
		s.setErr(err)
		return nil, err
	}
	if title == "" {
		title = model.DefaultFavoriteTitle
	}

	if s.session.Mode() == model.ModeAuthenticated {
		// 迁移期间的手动新增在同步门上排队，不与批量迁移竞争
		if err := s.waitForSync(ctx); err != nil {
			return nil, err
		}
		item, err := s.remote.Create(ctx, title, url)
		if err != nil {
			s.setErr(err)
			return nil, err
		}
		s.notifier.notify()
		return item, nil
	}

	items := s.cache.Load()
	now := time.Now()
	item := model.FavoriteItem{
		// 客户端按时间生成，仅在本层唯一；迁移到远端时被丢弃
		ID:        s.nextLocalID(items, now),
		Title:     title,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	items = append(items, item)
	if err := s.cache.Save(items); err != nil {
		s.setErr(err)
		return nil, err
	}
	s.notifier.notify()
	return &item, nil
}

// nextLocalID 生成一个缓存层唯一的时间型 ID。
func (s *favoriteService) nextLocalID(items []model.FavoriteItem, now time.Time) int64 {
	id := now.UnixMilli()
	for {
		taken := false
		for _, it := range items {
			if it.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		id++
	}
}

// Update 修改收藏的标题和 URL。
func (s *favoriteService) Update(ctx context.Context, id int64, title, url string) (*model.FavoriteItem, error) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if url == "" {
		err := fmt.Errorf("%w: url is required", apperr.ErrValidation)
		s.setErr(err)
		return nil, err
	}
	if title == "" {
		title = model.DefaultFavoriteTitle
	}

	if s.session.Mode() == model.ModeAuthenticated {
		if err := s.waitForSync(ctx); err != nil {
			return nil, err
		}
		item, err := s.remote.Update(ctx, id, title, url)
		if err != nil {
			s.setErr(err)
			return nil, err
		}
		s.notifier.notify()
		return item, nil
	}

	items := s.cache.Load()
	for i := range items {
		if items[i].ID == id {
			items[i].Title = title
			items[i].URL = url
			items[i].UpdatedAt = time.Now()
			if err := s.cache.Save(items); err != nil {
				s.setErr(err)
				return nil, err
			}
			s.notifier.notify()
			item := items[i]
			return &item, nil
		}
	}
	err := fmt.Errorf("%w: favorite %d not in cache", apperr.ErrNotFound, id)
	s.setErr(err)
	return nil, err
}

// Delete 删除收藏。
func (s *favoriteService) Delete(ctx context.Context, id int64) error {
	if s.session.Mode() == model.ModeAuthenticated {
		if err := s.waitForSync(ctx); err != nil {
			return err
		}
		if err := s.remote.Delete(ctx, id); err != nil {
			s.setErr(err)
			return err
		}
		s.notifier.notify()
		return nil
	}

	items := s.cache.Load()
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if err := s.cache.Save(kept); err != nil {
		s.setErr(err)
		return err
	}
	s.notifier.notify()
	return nil
}

// Err 返回最近一次收藏操作的错误。
func (s *favoriteService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// ClearErr 清除当前错误。
func (s *favoriteService) ClearErr() {
	s.mu.Lock()
	s.errVal = nil
	s.mu.Unlock()
}

func (s *favoriteService) Subscribe(fn func()) (cancel func()) {
	return s.notifier.Subscribe(fn)
}

func (s *favoriteService) setErr(err error) {
	s.mu.Lock()
	s.errVal = err
	s.mu.Unlock()
	s.notifier.notify()
}
