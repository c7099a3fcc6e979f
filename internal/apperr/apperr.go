// Package apperr 定义了客户端统一的错误分类。
// 各层通过 errors.Is 判断错误类别，而不是跨组件抛异常。
package apperr

import "errors"

var (
	// ErrAuthRequired 表示操作需要已登录会话。该错误在本地检查产生，
	// 永远不会到达网络层。
	ErrAuthRequired = errors.New("authentication required")

	// ErrUnauthorized 表示服务端拒绝了凭证（token 无效或已过期）。
	// 与 ErrAuthRequired 不同：凭证存在但不被接受。
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound 表示引用的实体已不存在（例如被其他会话删除）。
	ErrNotFound = errors.New("not found")

	// ErrValidation 表示必填字段缺失或非法（例如收藏缺少 URL）。
	ErrValidation = errors.New("validation failed")

	// ErrTransport 表示网络错误、超时或服务端未知错误。
	ErrTransport = errors.New("transport failure")
)
