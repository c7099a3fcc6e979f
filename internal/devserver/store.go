// Package devserver 实现了一个本地开发后端，
// 提供客户端消费的全部远程接口（认证、对话、聊天、收藏），
// 让客户端在没有生产服务的环境下也能完整运行。
package devserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
)

// User 是开发后端的用户记录。
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Store 定义了开发后端的数据访问接口。
// 两个实现：内存（默认，测试使用）与持久化（MySQL + Redis）。
type Store interface {
	CreateUser(ctx context.Context, email, hashedPassword string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)

	ListFavorites(ctx context.Context, userID int64) ([]model.FavoriteItem, error)
	CreateFavorite(ctx context.Context, userID int64, title, url string) (*model.FavoriteItem, error)
	UpdateFavorite(ctx context.Context, userID, id int64, title, url string) (*model.FavoriteItem, error)
	DeleteFavorite(ctx context.Context, userID, id int64) error

	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	CreateConversation(ctx context.Context, userID int64, title string, folderID *int64) (*model.Conversation, error)
	GetConversation(ctx context.Context, userID, id int64) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, userID, id int64, title string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, userID, id int64) error
	// AppendMessages 把一轮对话的消息追加到对话历史并刷新 updated_at。
	AppendMessages(ctx context.Context, userID, convID int64, msgs []model.Message) error
}

// memoryStore 是 Store 的内存实现。
type memoryStore struct {
	mu sync.Mutex

	users  map[int64]*User
	emails map[string]int64

	favorites map[int64][]model.FavoriteItem // userID -> items（插入顺序）
	convs     map[int64]*model.Conversation
	convOwner map[int64]int64

	nextUserID int64
	nextFavID  int64
	nextConvID int64
}

// NewMemoryStore 创建一个内存 Store。
func NewMemoryStore() Store {
	return &memoryStore{
		users:     make(map[int64]*User),
		emails:    make(map[string]int64),
		favorites: make(map[int64][]model.FavoriteItem),
		convs:     make(map[int64]*model.Conversation),
		convOwner: make(map[int64]int64),
	}
}

func (s *memoryStore) CreateUser(_ context.Context, email, hashedPassword string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[email]; exists {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrValidation)
	}
	s.nextUserID++
	u := &User{ID: s.nextUserID, Email: email, Password: hashedPassword, CreatedAt: time.Now()}
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return u, nil
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	u := *s.users[id]
	return &u, nil
}

func (s *memoryStore) FindUserByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
	}
	out := *u
	return &out, nil
}

func (s *memoryStore) ListFavorites(_ context.Context, userID int64) ([]model.FavoriteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.favorites[userID]
	// 与生产接口一致：最新创建的排在前面
	out := make([]model.FavoriteItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

func (s *memoryStore) CreateFavorite(_ context.Context, userID int64, title, url string) (*model.FavoriteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFavID++
	now := time.Now()
	item := model.FavoriteItem{ID: s.nextFavID, Title: title, URL: url, CreatedAt: now, UpdatedAt: now}
	s.favorites[userID] = append(s.favorites[userID], item)
	return &item, nil
}

func (s *memoryStore) UpdateFavorite(_ context.Context, userID, id int64, title, url string) (*model.FavoriteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.favorites[userID]
	for i := range items {
		if items[i].ID == id {
			items[i].Title = title
			items[i].URL = url
			items[i].UpdatedAt = time.Now()
			item := items[i]
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: favorite %d", apperr.ErrNotFound, id)
}

func (s *memoryStore) DeleteFavorite(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.favorites[userID]
	for i := range items {
		if items[i].ID == id {
			s.favorites[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: favorite %d", apperr.ErrNotFound, id)
}

func (s *memoryStore) ListConversations(_ context.Context, userID int64) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, 0)
	for id, conv := range s.convs {
		if s.convOwner[id] != userID {
			continue
		}
		meta := *conv
		meta.Messages = nil
		out = append(out, meta)
	}
	// 最近更新的排在前面
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memoryStore) CreateConversation(_ context.Context, userID int64, title string, folderID *int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextConvID++
	now := time.Now()
	conv := &model.Conversation{ID: s.nextConvID, Title: title, FolderID: folderID, CreatedAt: now, UpdatedAt: now}
	s.convs[conv.ID] = conv
	s.convOwner[conv.ID] = userID
	meta := *conv
	return &meta, nil
}

func (s *memoryStore) GetConversation(_ context.Context, userID, id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok || s.convOwner[id] != userID {
		return nil, fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, id)
	}
	out := *conv
	out.Messages = append([]model.Message(nil), conv.Messages...)
	return &out, nil
}

func (s *memoryStore) UpdateConversation(_ context.Context, userID, id int64, title string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok || s.convOwner[id] != userID {
		return nil, fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, id)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	meta := *conv
	meta.Messages = nil
	return &meta, nil
}

func (s *memoryStore) DeleteConversation(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok || s.convOwner[id] != userID {
		return fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, id)
	}
	delete(s.convs, id)
	delete(s.convOwner, id)
	return nil
}

func (s *memoryStore) AppendMessages(_ context.Context, userID, convID int64, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok || s.convOwner[convID] != userID {
		return fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, convID)
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = time.Now()
	return nil
}
