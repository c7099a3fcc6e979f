package service

import (
	"context"
	"fmt"
	"sync"

	"pai-chat-client/internal/apperr"
	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/api"
)

// fakeSession 是可切换模式的 SessionReader 测试替身。
type fakeSession struct {
	mu   sync.Mutex
	mode model.SessionMode
}

func (f *fakeSession) Mode() model.SessionMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeSession) setMode(m model.SessionMode) {
	f.mu.Lock()
	f.mode = m
	f.mu.Unlock()
}

// memCache 是内存版的收藏缓存，实现 repository.FavoriteCacheRepository。
type memCache struct {
	mu    sync.Mutex
	items []model.FavoriteItem
}

func (c *memCache) Load() []model.FavoriteItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.FavoriteItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *memCache) Save(items []model.FavoriteItem) error {
	c.mu.Lock()
	c.items = append([]model.FavoriteItem(nil), items...)
	c.mu.Unlock()
	return nil
}

func (c *memCache) Clear() error {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
	return nil
}

// memCreds 是内存版的凭证槽，实现 repository.CredentialRepository。
type memCreds struct {
	mu    sync.Mutex
	token string
}

func (c *memCreds) LoadToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *memCreds) SaveToken(token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *memCreds) ClearToken() error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// fakeFavoriteClient 模拟远端收藏集合。
// createHook 非 nil 时在每次 Create 生效前调用，可用于阻塞或注入失败。
type fakeFavoriteClient struct {
	mu         sync.Mutex
	nextID     int64
	remote     []model.FavoriteItem
	createHook func(title, url string) error
}

func (f *fakeFavoriteClient) List(ctx context.Context) ([]model.FavoriteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.FavoriteItem, len(f.remote))
	copy(out, f.remote)
	return out, nil
}

func (f *fakeFavoriteClient) Create(ctx context.Context, title, url string) (*model.FavoriteItem, error) {
	if f.createHook != nil {
		if err := f.createHook(title, url); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item := model.FavoriteItem{ID: f.nextID, Title: title, URL: url}
	f.remote = append(f.remote, item)
	return &item, nil
}

func (f *fakeFavoriteClient) Update(ctx context.Context, id int64, title, url string) (*model.FavoriteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.remote {
		if f.remote[i].ID == id {
			f.remote[i].Title = title
			f.remote[i].URL = url
			item := f.remote[i]
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: favorite %d", apperr.ErrNotFound, id)
}

func (f *fakeFavoriteClient) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.remote[:0]
	for _, it := range f.remote {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	f.remote = kept
	return nil
}

func (f *fakeFavoriteClient) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.remote))
	for _, it := range f.remote {
		out = append(out, it.Title)
	}
	return out
}

// fakeAuthClient 模拟认证接口。
type fakeAuthClient struct {
	token   string
	profile *model.UserProfile
	err     error
}

func (f *fakeAuthClient) Register(ctx context.Context, email, password string) (string, error) {
	return f.token, f.err
}

func (f *fakeAuthClient) Login(ctx context.Context, email, password string) (string, error) {
	return f.token, f.err
}

func (f *fakeAuthClient) GetCurrentUser(ctx context.Context) (*model.UserProfile, error) {
	if f.profile == nil {
		return nil, context.Canceled
	}
	return f.profile, nil
}

// countingSyncEngine 记录迁移被触发的次数。
type countingSyncEngine struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingSyncEngine) SyncFromCache(ctx context.Context) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.err
}

func (e *countingSyncEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeConvClient 用函数字段模拟对话 CRUD，未设置的方法不应被调用。
type fakeConvClient struct {
	mu       sync.Mutex
	called   int
	listFn   func(ctx context.Context) ([]model.Conversation, error)
	createFn func(ctx context.Context, title string, folderID *int64) (*model.Conversation, error)
	getFn    func(ctx context.Context, id int64) (*model.Conversation, error)
	updateFn func(ctx context.Context, id int64, title string) (*model.Conversation, error)
	deleteFn func(ctx context.Context, id int64) error
}

func (f *fakeConvClient) touch() {
	f.mu.Lock()
	f.called++
	f.mu.Unlock()
}

func (f *fakeConvClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

func (f *fakeConvClient) List(ctx context.Context) ([]model.Conversation, error) {
	f.touch()
	return f.listFn(ctx)
}

func (f *fakeConvClient) Create(ctx context.Context, title string, folderID *int64) (*model.Conversation, error) {
	f.touch()
	return f.createFn(ctx, title, folderID)
}

func (f *fakeConvClient) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	f.touch()
	return f.getFn(ctx, id)
}

func (f *fakeConvClient) Update(ctx context.Context, id int64, title string) (*model.Conversation, error) {
	f.touch()
	return f.updateFn(ctx, id, title)
}

func (f *fakeConvClient) Delete(ctx context.Context, id int64) error {
	f.touch()
	return f.deleteFn(ctx, id)
}

// fakeChatClient 模拟聊天提交。
type fakeChatClient struct {
	submitFn func(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error)
	streamFn func(ctx context.Context, req api.ChatRequest, onChunk func(string)) (*api.ChatResult, error)
}

func (f *fakeChatClient) Submit(ctx context.Context, req api.ChatRequest) (*api.ChatResult, error) {
	return f.submitFn(ctx, req)
}

func (f *fakeChatClient) SubmitStream(ctx context.Context, req api.ChatRequest, onChunk func(string)) (*api.ChatResult, error) {
	return f.streamFn(ctx, req, onChunk)
}
