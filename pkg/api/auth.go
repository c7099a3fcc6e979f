package api

import (
	"context"
	"net/http"

	"pai-chat-client/internal/model"
)

// AuthClient 定义了认证接口。
type AuthClient interface {
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	GetCurrentUser(ctx context.Context) (*model.UserProfile, error)
}

type authClient struct {
	*Client
}

// NewAuthClient 创建一个 AuthClient。
func NewAuthClient(c *Client) AuthClient {
	return &authClient{Client: c}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register 注册新用户并返回 access token。
func (c *authClient) Register(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", credentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Login 登录并返回 access token。
func (c *authClient) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", credentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// GetCurrentUser 获取当前登录用户的信息。
func (c *authClient) GetCurrentUser(ctx context.Context) (*model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
