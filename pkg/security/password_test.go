package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hashed, err := HashPassword("s3cret-password", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hashed)

	// 盐值随机，同一明文两次哈希结果不同
	hashed2, err := HashPassword("s3cret-password", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, hashed, hashed2)

	assert.True(t, CheckPassword("s3cret-password", hashed))
	assert.True(t, CheckPassword("s3cret-password", hashed2))
}

func TestHashPasswordCostClamp(t *testing.T) {
	// 非法 cost 回退默认值而不是报错
	hashed, err := HashPassword("pw", -1)
	require.NoError(t, err)
	assert.True(t, CheckPassword("pw", hashed))

	hashed, err = HashPassword("pw", 99)
	require.NoError(t, err)
	assert.True(t, CheckPassword("pw", hashed))
}

func TestCheckPassword(t *testing.T) {
	hashed, err := HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)

	assert.False(t, CheckPassword("wrong-horse", hashed))
	assert.False(t, CheckPassword("", hashed))

	// 存储哈希损坏时按校验失败处理
	assert.False(t, CheckPassword("correct-horse", "not-a-bcrypt-hash"))
	assert.False(t, CheckPassword("correct-horse", ""))
}
