package repository

import (
	"context"
	"testing"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.RefreshSession{},
		&model.Course{},
		&model.Lesson{},
		&model.Enrollment{},
		&model.Quiz{},
		&model.QuizQuestion{},
		&model.QuizAttempt{},
		&model.QuizAttemptAnswer{},
	))
	return db
}

func TestSessionCreate(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	session, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	// 新会话是链根：FamilyID 等于自身 ID
	assert.Equal(t, session.ID, session.FamilyID)
	assert.Nil(t, session.RevokedAt)
	assert.True(t, session.Active(time.Now()))
}

func TestSessionRotate(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	root, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	successor, err := repo.Rotate(ctx, root.ID, time.Hour)
	require.NoError(t, err)

	// 继任者继承链根
	assert.NotEqual(t, root.ID, successor.ID)
	assert.Equal(t, root.FamilyID, successor.FamilyID)

	// 旧会话已撤销并指向继任者
	old, err := repo.FindByID(ctx, root.ID)
	require.NoError(t, err)
	assert.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, successor.ID, *old.ReplacedBy)
}

func TestSessionRotateRevokedIsReuse(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	root, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, root.ID, time.Hour)
	require.NoError(t, err)

	// 同一会话再次轮换：视为旧令牌重放
	_, err = repo.Rotate(ctx, root.ID, time.Hour)
	assert.ErrorIs(t, err, util.ErrSessionRevoked)
}

func TestSessionRotateExpired(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	session, err := repo.Create(ctx, 1, -time.Minute)
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, session.ID, time.Hour)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestSessionRotateUnknown(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))

	_, err := repo.Rotate(context.Background(), "no-such-session", time.Hour)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestSessionRevokeIdempotent(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	session, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.Revoke(ctx, session.ID))
	first, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)
	revokedAt := *first.RevokedAt

	// 重复撤销不报错也不改写撤销时间
	require.NoError(t, repo.Revoke(ctx, session.ID))
	second, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, revokedAt.Unix(), second.RevokedAt.Unix())
}

func TestSessionRevokeFamily(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	root, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	// 轮换两次形成三代会话链
	second, err := repo.Rotate(ctx, root.ID, time.Hour)
	require.NoError(t, err)
	third, err := repo.Rotate(ctx, second.ID, time.Hour)
	require.NoError(t, err)

	// 另一用户的无关会话不受影响
	other, err := repo.Create(ctx, 2, time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.RevokeFamily(ctx, root.FamilyID))

	for _, id := range []string{root.ID, second.ID, third.ID} {
		s, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, s.RevokedAt, "session %s should be revoked", id)
	}

	active, err := repo.IsActive(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSessionRevokeAllByUser(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()

	a, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)
	b, err := repo.Create(ctx, 1, time.Hour)
	require.NoError(t, err)
	other, err := repo.Create(ctx, 2, time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.RevokeAllByUser(ctx, 1))

	for _, id := range []string{a.ID, b.ID} {
		active, err := repo.IsActive(ctx, id)
		require.NoError(t, err)
		assert.False(t, active)
	}

	active, err := repo.IsActive(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSessionIsActiveUnknown(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))

	active, err := repo.IsActive(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, active)
}
