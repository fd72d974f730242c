package util

import (
	"testing"
	"time"

	"elearning_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

func testUser() *model.User {
	return &model.User{
		BaseModel: model.BaseModel{ID: 42},
		Email:     "alice@example.com",
		Role:      model.Student,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(testUser(), TokenAccess, "", testSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret, TokenAccess, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Empty(t, claims.SessionID)
}

func TestParseTokenKindMismatch(t *testing.T) {
	// 刷新令牌不能当访问令牌用，反之亦然
	refresh, err := GenerateToken(testUser(), TokenRefresh, "sess-1", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(refresh, testSecret, TokenAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := ParseToken(refresh, testSecret, TokenRefresh, 0)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testUser(), TokenAccess, "", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "another-secret-0123456789abcdef000", TokenAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenExpiry(t *testing.T) {
	token, err := GenerateToken(testUser(), TokenAccess, "", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret, TokenAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// leeway 内的过期仍然接受
	_, err = ParseToken(token, testSecret, TokenAccess, 2*time.Minute)
	assert.NoError(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret, TokenAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("", testSecret, TokenAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenAllowExpired(t *testing.T) {
	token, err := GenerateToken(testUser(), TokenRefresh, "sess-9", testSecret, -time.Hour)
	require.NoError(t, err)

	// 常规解析拒绝
	_, err = ParseToken(token, testSecret, TokenRefresh, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 登出路径只验签不验过期
	claims, err := ParseTokenAllowExpired(token, testSecret, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", claims.SessionID)

	// 签名仍然必须合法
	_, err = ParseTokenAllowExpired(token, "wrong-secret-0123456789abcdef00000", TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
