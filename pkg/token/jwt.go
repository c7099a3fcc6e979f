// Package token 提供了 JSON Web Token 的生成、验证与本地检查功能。
// 生成与验证由开发后端使用；客户端只做不验签的过期检查，
// 用于在启动时判断保存的凭证是否还值得恢复。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey      []byte
	accessTokenDur time.Duration
}

// CustomClaims 定义了存储在 JWT 中的自定义数据。
type CustomClaims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, accessTokenExpireHours int) *JWTManager {
	return &JWTManager{
		secretKey:      []byte(secret),
		accessTokenDur: time.Hour * time.Duration(accessTokenExpireHours),
	}
}

// GenerateToken 根据给定的用户信息生成一个新的 access token。
func (m *JWTManager) GenerateToken(userID int64, email string) (string, error) {
	claims := CustomClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.accessTokenDur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串，有效时返回 CustomClaims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	t, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := t.Claims.(*CustomClaims); ok && t.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// InspectExpiry 不验证签名，仅解析 token 的过期时间。
// 客户端没有密钥，只能用它来跳过明显已过期的本地凭证；
// 真正的有效性仍由服务端判定。
func InspectExpiry(tokenString string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		// 没有 exp 的 token 视为不过期
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Expired 判断 token 是否已经过期（不验签）。
// 解析失败视为已过期，让调用方丢弃并回到游客模式。
func Expired(tokenString string, now time.Time) bool {
	exp, err := InspectExpiry(tokenString)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !exp.After(now)
}
