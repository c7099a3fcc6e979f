package repository

import (
	"errors"
	"fmt"
	"time"

	"pai-chat-client/pkg/kvstore"
)

// credentialSlot 是凭证 token 使用的存储槽名。
const credentialSlot = "credential"

// storedCredential 是写入存储槽的凭证记录。
type storedCredential struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// CredentialRepository 定义了 bearer token 本地槽的操作接口。
type CredentialRepository interface {
	// LoadToken 返回保存的 token，没有或内容损坏时返回空串。
	LoadToken() string
	// SaveToken 保存 token。
	SaveToken(token string) error
	// ClearToken 清空凭证槽。
	ClearToken() error
}

type credentialRepository struct {
	store *kvstore.Store
}

// NewCredentialRepository 创建一个 CredentialRepository。
func NewCredentialRepository(store *kvstore.Store) CredentialRepository {
	return &credentialRepository{store: store}
}

// LoadToken 返回保存的 token。
func (r *credentialRepository) LoadToken() string {
	var cred storedCredential
	if err := r.store.Get(credentialSlot, &cred); err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			// 与收藏缓存一致：本地槽的问题不向上传播
			return ""
		}
		return ""
	}
	return cred.Token
}

// SaveToken 保存 token。
func (r *credentialRepository) SaveToken(token string) error {
	if err := r.store.Set(credentialSlot, storedCredential{Token: token, SavedAt: time.Now()}); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// ClearToken 清空凭证槽。
func (r *credentialRepository) ClearToken() error {
	return r.store.Delete(credentialSlot)
}
