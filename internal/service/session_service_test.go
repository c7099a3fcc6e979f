package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pai-chat-client/internal/model"
	"pai-chat-client/pkg/token"
)

func TestEstablishedSwitchesModeAndSyncsOnce(t *testing.T) {
	creds := &memCreds{}
	engine := &countingSyncEngine{}
	svc := NewSessionService(creds)
	svc.SetSyncEngine(engine)

	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-1"))
	assert.Equal(t, model.ModeAuthenticated, svc.Mode())
	assert.Equal(t, "token-1", svc.Token())
	assert.Equal(t, "token-1", creds.LoadToken())
	assert.Equal(t, 1, engine.count())

	// 幂等：已登录态再次建立是 no-op，不重复触发迁移
	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-2"))
	assert.Equal(t, "token-1", svc.Token())
	assert.Equal(t, 1, engine.count())
}

func TestEstablishedSurvivesSyncFailure(t *testing.T) {
	engine := &countingSyncEngine{err: assert.AnError}
	svc := NewSessionService(&memCreds{})
	svc.SetSyncEngine(engine)

	// 迁移失败不阻止登录，缓存留待下次认证重试
	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-1"))
	assert.Equal(t, model.ModeAuthenticated, svc.Mode())
	assert.Equal(t, 1, engine.count())
}

func TestEstablishedFetchesProfile(t *testing.T) {
	svc := NewSessionService(&memCreds{})
	svc.SetAuthClient(&fakeAuthClient{profile: &model.UserProfile{ID: 7, Email: "a@b.c"}})

	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-1"))
	user := svc.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, "a@b.c", user.Email)
}

func TestLoginEstablishesSession(t *testing.T) {
	engine := &countingSyncEngine{}
	svc := NewSessionService(&memCreds{})
	svc.SetAuthClient(&fakeAuthClient{token: "issued-token"})
	svc.SetSyncEngine(engine)

	require.NoError(t, svc.Login(context.Background(), "a@b.c", "pw"))
	assert.Equal(t, model.ModeAuthenticated, svc.Mode())
	assert.Equal(t, "issued-token", svc.Token())
	assert.Equal(t, 1, engine.count())
}

func TestLoginFailureStaysGuest(t *testing.T) {
	svc := NewSessionService(&memCreds{})
	svc.SetAuthClient(&fakeAuthClient{err: assert.AnError})

	require.Error(t, svc.Login(context.Background(), "a@b.c", "pw"))
	assert.Equal(t, model.ModeGuest, svc.Mode())
	assert.ErrorIs(t, svc.Err(), assert.AnError)
}

func TestClearedResetsSessionAndRunsHooks(t *testing.T) {
	creds := &memCreds{}
	svc := NewSessionService(creds)
	svc.SetAuthClient(&fakeAuthClient{profile: &model.UserProfile{ID: 1, Email: "a@b.c"}})

	hookRuns := 0
	svc.AddResetHook(func() { hookRuns++ })

	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-1"))
	svc.OnAuthenticationCleared()

	assert.Equal(t, model.ModeGuest, svc.Mode())
	assert.Empty(t, svc.Token())
	assert.Nil(t, svc.CurrentUser())
	assert.Empty(t, creds.LoadToken())
	assert.Equal(t, 1, hookRuns)
}

func TestLogoutThenLoginSyncsAgain(t *testing.T) {
	engine := &countingSyncEngine{}
	svc := NewSessionService(&memCreds{})
	svc.SetSyncEngine(engine)

	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-1"))
	svc.OnAuthenticationCleared()
	require.NoError(t, svc.OnAuthenticationEstablished(context.Background(), "token-2"))

	// 每次真实的 Guest -> Authenticated 转换各触发一次迁移
	assert.Equal(t, 2, engine.count())
}

func TestRestoreSessionNoCredential(t *testing.T) {
	svc := NewSessionService(&memCreds{})
	assert.False(t, svc.RestoreSession(context.Background()))
	assert.Equal(t, model.ModeGuest, svc.Mode())
}

func TestRestoreSessionExpiredToken(t *testing.T) {
	expired, err := token.NewJWTManager("test-secret", -1).GenerateToken(1, "a@b.c")
	require.NoError(t, err)

	creds := &memCreds{token: expired}
	svc := NewSessionService(creds)

	assert.False(t, svc.RestoreSession(context.Background()))
	assert.Equal(t, model.ModeGuest, svc.Mode())
	// 过期凭证被丢弃，下次启动不再反复尝试
	assert.Empty(t, creds.LoadToken())
}

func TestRestoreSessionMalformedToken(t *testing.T) {
	creds := &memCreds{token: "not-a-jwt"}
	svc := NewSessionService(creds)

	assert.False(t, svc.RestoreSession(context.Background()))
	assert.Equal(t, model.ModeGuest, svc.Mode())
}

func TestRestoreSessionValidToken(t *testing.T) {
	valid, err := token.NewJWTManager("test-secret", 24).GenerateToken(1, "a@b.c")
	require.NoError(t, err)

	engine := &countingSyncEngine{}
	svc := NewSessionService(&memCreds{token: valid})
	svc.SetSyncEngine(engine)

	assert.True(t, svc.RestoreSession(context.Background()))
	assert.Equal(t, model.ModeAuthenticated, svc.Mode())
	assert.Equal(t, valid, svc.Token())
	assert.Equal(t, 1, engine.count())
}
