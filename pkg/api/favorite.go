package api

import (
	"context"
	"fmt"
	"net/http"

	"pai-chat-client/internal/model"
)

// FavoriteClient 定义了远端收藏集合的操作接口。
// 所有操作都以当前登录用户为作用域。
type FavoriteClient interface {
	List(ctx context.Context) ([]model.FavoriteItem, error)
	Create(ctx context.Context, title, url string) (*model.FavoriteItem, error)
	Update(ctx context.Context, id int64, title, url string) (*model.FavoriteItem, error)
	Delete(ctx context.Context, id int64) error
}

type favoriteClient struct {
	*Client
}

// NewFavoriteClient 创建一个 FavoriteClient。
func NewFavoriteClient(c *Client) FavoriteClient {
	return &favoriteClient{Client: c}
}

type favoriteRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// List 返回当前用户的全部收藏。
func (c *favoriteClient) List(ctx context.Context) ([]model.FavoriteItem, error) {
	var items []model.FavoriteItem
	if err := c.doJSON(ctx, http.MethodGet, "/api/favorites/", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Create 新增一条收藏，远端签发权威 ID 与时间戳。
func (c *favoriteClient) Create(ctx context.Context, title, url string) (*model.FavoriteItem, error) {
	var item model.FavoriteItem
	if err := c.doJSON(ctx, http.MethodPost, "/api/favorites/", favoriteRequest{Title: title, URL: url}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update 修改一条收藏的标题和 URL。
func (c *favoriteClient) Update(ctx context.Context, id int64, title, url string) (*model.FavoriteItem, error) {
	var item model.FavoriteItem
	path := fmt.Sprintf("/api/favorites/%d", id)
	if err := c.doJSON(ctx, http.MethodPut, path, favoriteRequest{Title: title, URL: url}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete 删除一条收藏。
func (c *favoriteClient) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/favorites/%d", id), nil, nil)
}
