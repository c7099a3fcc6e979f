package service

import (
	"context"
	"sync"
	"time"

	"pai-chat-client/internal/model"
	"pai-chat-client/internal/repository"
	"pai-chat-client/pkg/api"
	"pai-chat-client/pkg/log"
	"pai-chat-client/pkg/token"
)

// SessionReader 暴露其他 store 需要的只读会话状态。
type SessionReader interface {
	Mode() model.SessionMode
}

// FavoriteSyncEngine 是会话服务触发收藏迁移的入口。
type FavoriteSyncEngine interface {
	SyncFromCache(ctx context.Context) error
}

// SessionService 维护进程内唯一的会话状态，
// 并在 Guest -> Authenticated 的真实转换上恰好触发一次收藏迁移。
type SessionService interface {
	SessionReader
	// Token 返回当前 bearer token，游客态为空串。可直接用作 api.TokenSource。
	Token() string
	// CurrentUser 返回当前登录用户，游客态为 nil。
	CurrentUser() *model.UserProfile

	// Register 注册并建立已登录会话。
	Register(ctx context.Context, email, password string) error
	// Login 登录并建立已登录会话。
	Login(ctx context.Context, email, password string) error
	// RestoreSession 在启动时尝试用保存的凭证恢复会话。
	// 凭证缺失或已过期时保持游客态，返回 false。
	RestoreSession(ctx context.Context) bool

	// OnAuthenticationEstablished 将会话切换到已登录态。幂等：
	// 已登录时再次调用是 no-op。真实转换会在返回前完成收藏迁移。
	OnAuthenticationEstablished(ctx context.Context, tokenString string) error
	// OnAuthenticationCleared 退出登录：清空内存中的会话与对话状态
	// 以及凭证槽，但绝不触碰本地收藏缓存。
	OnAuthenticationCleared()

	// Err 返回最近一次认证操作的错误，ClearErr 清除它。
	Err() error
	ClearErr()
	Subscribe(fn func()) (cancel func())

	// 以下为装配期注入点，避免与依赖会话状态的组件形成构造环。
	SetAuthClient(client api.AuthClient)
	SetSyncEngine(engine FavoriteSyncEngine)
	AddResetHook(fn func())
}

type sessionService struct {
	mu      sync.Mutex
	session model.Session
	errVal  error

	creds      repository.CredentialRepository
	authClient api.AuthClient
	syncEngine FavoriteSyncEngine
	resetHooks []func()

	notifier notifier
}

// NewSessionService 创建一个 SessionService，初始为游客态。
func NewSessionService(creds repository.CredentialRepository) SessionService {
	return &sessionService{
		creds:   creds,
		session: model.Session{Mode: model.ModeGuest},
	}
}

func (s *sessionService) SetAuthClient(client api.AuthClient)     { s.authClient = client }
func (s *sessionService) SetSyncEngine(engine FavoriteSyncEngine) { s.syncEngine = engine }
func (s *sessionService) AddResetHook(fn func())                  { s.resetHooks = append(s.resetHooks, fn) }

// Mode 返回当前会话模式。
func (s *sessionService) Mode() model.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Mode
}

// Token 返回当前 bearer token。
func (s *sessionService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// CurrentUser 返回当前登录用户。
func (s *sessionService) CurrentUser() *model.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.User
}

// Register 注册并建立已登录会话。
func (s *sessionService) Register(ctx context.Context, email, password string) error {
	tokenString, err := s.authClient.Register(ctx, email, password)
	if err != nil {
		s.setErr(err)
		return err
	}
	return s.OnAuthenticationEstablished(ctx, tokenString)
}

// Login 登录并建立已登录会话。
func (s *sessionService) Login(ctx context.Context, email, password string) error {
	tokenString, err := s.authClient.Login(ctx, email, password)
	if err != nil {
		s.setErr(err)
		return err
	}
	return s.OnAuthenticationEstablished(ctx, tokenString)
}

// RestoreSession 在启动时尝试用保存的凭证恢复会话。
func (s *sessionService) RestoreSession(ctx context.Context) bool {
	tokenString := s.creds.LoadToken()
	if tokenString == "" {
		return false
	}
	// 客户端没有密钥，只做不验签的过期检查；真正的有效性由服务端判定。
	if token.Expired(tokenString, time.Now()) {
		log.Info("保存的凭证已过期，回到游客模式")
		_ = s.creds.ClearToken()
		return false
	}
	if err := s.OnAuthenticationEstablished(ctx, tokenString); err != nil {
		return false
	}
	return true
}

// OnAuthenticationEstablished 将会话切换到已登录态。
func (s *sessionService) OnAuthenticationEstablished(ctx context.Context, tokenString string) error {
	s.mu.Lock()
	if s.session.Mode == model.ModeAuthenticated {
		// 幂等：重复建立是 no-op，不重复触发迁移
		s.mu.Unlock()
		return nil
	}
	s.session.Mode = model.ModeAuthenticated
	s.session.Token = tokenString
	s.mu.Unlock()

	if err := s.creds.SaveToken(tokenString); err != nil {
		log.Warnf("保存凭证失败: %v", err)
	}

	// 迁移在返回前完成：并发发起的已登录读取会在收藏服务的
	// 同步门上排队，保证不会读到迁移一半的集合。
	if s.syncEngine != nil {
		if err := s.syncEngine.SyncFromCache(ctx); err != nil {
			// 迁移失败不打扰用户，缓存原样保留，下次登录时重试
			log.Warnf("收藏迁移失败，将在下次认证时重试: %v", err)
		}
	}

	if s.authClient != nil {
		if profile, err := s.authClient.GetCurrentUser(ctx); err == nil {
			s.mu.Lock()
			s.session.User = profile
			s.mu.Unlock()
		} else {
			log.Warnf("获取用户信息失败: %v", err)
		}
	}

	s.notifier.notify()
	return nil
}

// OnAuthenticationCleared 退出登录。
func (s *sessionService) OnAuthenticationCleared() {
	s.mu.Lock()
	s.session = model.Session{Mode: model.ModeGuest}
	s.errVal = nil
	s.mu.Unlock()

	if err := s.creds.ClearToken(); err != nil {
		log.Warnf("清除凭证失败: %v", err)
	}

	// 显式的进程内重置，不依赖整个进程重启。
	// 本地收藏缓存不在重置范围内：回到游客态的用户不应丢失未迁移的收藏。
	for _, fn := range s.resetHooks {
		fn()
	}
	s.notifier.notify()
}

// Err 返回最近一次认证操作的错误。
func (s *sessionService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// ClearErr 清除当前错误。
func (s *sessionService) ClearErr() {
	s.mu.Lock()
	s.errVal = nil
	s.mu.Unlock()
}

func (s *sessionService) Subscribe(fn func()) (cancel func()) {
	return s.notifier.Subscribe(fn)
}

func (s *sessionService) setErr(err error) {
	s.mu.Lock()
	s.errVal = err
	s.mu.Unlock()
	s.notifier.notify()
}
