// Package kvstore 提供了基于文件的单槽键值存储。
// 每个键对应一个 JSON 文件，内容带版本号信封，用于保存客户端的本地状态
// （如收藏缓存、凭证 token）。
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pai-chat-client/pkg/log"
)

// SchemaVersion 是当前存储格式的版本号。
// 读取到不同版本或无法解析的内容时按"空"处理，不报错。
const SchemaVersion = 1

// envelope 是写入磁盘的信封结构，value 保持原始 JSON 延迟解码。
type envelope struct {
	Version int             `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// ErrNotFound 表示键对应的槽不存在。
var ErrNotFound = errors.New("kvstore: key not found")

// Store 管理一个目录下的若干存储槽。
type Store struct {
	dir string
}

// NewStore 创建一个 Store，目录不存在时自动创建。
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create kvstore dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get 读取 key 对应的值并反序列化到 v。
// 槽不存在时返回 ErrNotFound；内容损坏或版本不匹配时同样返回 ErrNotFound，
// 由调用方按"空"处理（损坏的本地状态不应让客户端崩溃）。
func (s *Store) Get(key string, v interface{}) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read slot %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("kvstore: 槽 %s 内容损坏，按空处理: %v", key, err)
		return ErrNotFound
	}
	if env.Version != SchemaVersion {
		log.Warnf("kvstore: 槽 %s 版本不匹配 (got %d, want %d)，按空处理", key, env.Version, SchemaVersion)
		return ErrNotFound
	}
	if err := json.Unmarshal(env.Value, v); err != nil {
		log.Warnf("kvstore: 槽 %s 值解析失败，按空处理: %v", key, err)
		return ErrNotFound
	}
	return nil
}

// Set 将 v 序列化后写入 key 对应的槽。
// 先写临时文件再重命名，避免写入中断留下半个文件。
func (s *Store) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal slot value: %w", err)
	}
	data, err := json.Marshal(envelope{Version: SchemaVersion, Value: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal slot envelope: %w", err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("failed to commit slot %s: %w", key, err)
	}
	return nil
}

// Delete 删除 key 对应的槽，槽不存在时不报错。
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}
	return nil
}
