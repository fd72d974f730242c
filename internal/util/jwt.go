package util

import (
	"elearning_backend/internal/model"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind 标识令牌用途，解码时必须与预期用途一致
type TokenKind string

const (
	TokenAccess        TokenKind = "access"
	TokenRefresh       TokenKind = "refresh"
	TokenEmailVerify   TokenKind = "email_verify"
	TokenPasswordReset TokenKind = "password_reset"
)

type Claims struct {
	UserID uint           `json:"user_id"`
	Role   model.UserRole `json:"role"`
	Email  string         `json:"email"`
	Kind   TokenKind      `json:"kind"`
	// SessionID 仅 refresh 令牌携带，对应刷新会话记录
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func GenerateToken(user *model.User, kind TokenKind, sessionID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
		Kind:      kind,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 验签并校验过期时间和令牌用途。
// 验签失败、过期、用途不符一律返回 ErrInvalidToken，不区分细节。
// leeway 用于容忍少量时钟偏差，取值来自配置，全局唯一。
func ParseToken(tokenString, secret string, expected TokenKind, leeway time.Duration) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(leeway))

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != expected {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseTokenAllowExpired 仅验签不校验过期，用于登出时尽力撤销会话：
// 已过期但签名合法的 refresh 令牌仍可定位到要撤销的会话。
func ParseTokenAllowExpired(tokenString, secret string, expected TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Kind != expected {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get("user")
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
