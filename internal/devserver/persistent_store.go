package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
)

// messageTTL 是对话消息历史在 Redis 中的保留时间。
const messageTTL = 7 * 24 * time.Hour

// FavoriteRecord 是收藏在 MySQL 中的表结构。
type FavoriteRecord struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"index;not null"`
	Title     string    `gorm:"size:255;not null"`
	URL       string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (FavoriteRecord) TableName() string { return "favorites" }

// ConversationRecord 是对话元数据在 MySQL 中的表结构。
// 消息历史不入库，按对话 ID 存放在 Redis。
type ConversationRecord struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    int64     `gorm:"index;not null"`
	Title     string    `gorm:"size:255;not null"`
	FolderID  *int64    `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ConversationRecord) TableName() string { return "conversations" }

// persistentStore 是 Store 的持久化实现：
// 用户/收藏/对话元数据在 MySQL，消息历史在 Redis。
type persistentStore struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewPersistentStore 创建持久化 Store 并自动建表。
func NewPersistentStore(db *gorm.DB, rdb *redis.Client) (Store, error) {
	if err := db.AutoMigrate(&User{}, &FavoriteRecord{}, &ConversationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate dev server tables: %w", err)
	}
	return &persistentStore{db: db, rdb: rdb}, nil
}

func (s *persistentStore) CreateUser(ctx context.Context, email, hashedPassword string) (*User, error) {
	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrValidation)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	u := &User{Email: email, Password: hashedPassword}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *persistentStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

func (s *persistentStore) FindUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

func favoriteFromRecord(r FavoriteRecord) model.FavoriteItem {
	return model.FavoriteItem{ID: r.ID, Title: r.Title, URL: r.URL, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

func (s *persistentStore) ListFavorites(ctx context.Context, userID int64) ([]model.FavoriteItem, error) {
	var records []FavoriteRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	items := make([]model.FavoriteItem, 0, len(records))
	for _, r := range records {
		items = append(items, favoriteFromRecord(r))
	}
	return items, nil
}

func (s *persistentStore) CreateFavorite(ctx context.Context, userID int64, title, url string) (*model.FavoriteItem, error) {
	r := FavoriteRecord{UserID: userID, Title: title, URL: url}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("failed to create favorite: %w", err)
	}
	item := favoriteFromRecord(r)
	return &item, nil
}

func (s *persistentStore) UpdateFavorite(ctx context.Context, userID, id int64, title, url string) (*model.FavoriteItem, error) {
	var r FavoriteRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: favorite %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find favorite: %w", err)
	}
	r.Title = title
	r.URL = url
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return nil, fmt.Errorf("failed to update favorite: %w", err)
	}
	item := favoriteFromRecord(r)
	return &item, nil
}

func (s *persistentStore) DeleteFavorite(ctx context.Context, userID, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&FavoriteRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: favorite %d", apperr.ErrNotFound, id)
	}
	return nil
}

func conversationFromRecord(r ConversationRecord) model.Conversation {
	return model.Conversation{ID: r.ID, Title: r.Title, FolderID: r.FolderID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

func (s *persistentStore) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	var records []ConversationRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(records))
	for _, r := range records {
		out = append(out, conversationFromRecord(r))
	}
	return out, nil
}

func (s *persistentStore) CreateConversation(ctx context.Context, userID int64, title string, folderID *int64) (*model.Conversation, error) {
	r := ConversationRecord{UserID: userID, Title: title, FolderID: folderID}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	conv := conversationFromRecord(r)
	return &conv, nil
}

func (s *persistentStore) findConversation(ctx context.Context, userID, id int64) (*ConversationRecord, error) {
	var r ConversationRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &r, nil
}

func messagesKey(convID int64) string {
	return fmt.Sprintf("conversation:%d:messages", convID)
}

func (s *persistentStore) GetConversation(ctx context.Context, userID, id int64) (*model.Conversation, error) {
	r, err := s.findConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conv := conversationFromRecord(*r)

	jsonData, err := s.rdb.Get(ctx, messagesKey(id)).Result()
	if err == redis.Nil {
		return &conv, nil // 还没有消息
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	if err := json.Unmarshal([]byte(jsonData), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation messages: %w", err)
	}
	return &conv, nil
}

func (s *persistentStore) UpdateConversation(ctx context.Context, userID, id int64, title string) (*model.Conversation, error) {
	r, err := s.findConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	r.Title = title
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	conv := conversationFromRecord(*r)
	return &conv, nil
}

func (s *persistentStore) DeleteConversation(ctx context.Context, userID, id int64) error {
	if _, err := s.findConversation(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&ConversationRecord{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if err := s.rdb.Del(ctx, messagesKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	return nil
}

func (s *persistentStore) AppendMessages(ctx context.Context, userID, convID int64, msgs []model.Message) error {
	r, err := s.findConversation(ctx, userID, convID)
	if err != nil {
		return err
	}

	var history []model.Message
	jsonData, err := s.rdb.Get(ctx, messagesKey(convID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get conversation messages: %w", err)
	}
	if err == nil {
		if uerr := json.Unmarshal([]byte(jsonData), &history); uerr != nil {
			return fmt.Errorf("failed to unmarshal conversation messages: %w", uerr)
		}
	}

	history = append(history, msgs...)
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation messages: %w", err)
	}
	if err := s.rdb.Set(ctx, messagesKey(convID), data, messageTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation messages: %w", err)
	}

	// 刷新 updated_at，让列表按最近活动排序
	r.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
