package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"elearning_backend/internal/config"
	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pngBytes 最小 PNG 文件头，足够 MIME 探测识别为 image/png
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newUserTestEnv(t *testing.T) (*UserService, *model.User, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	user := &model.User{Name: "Tester", Email: "tester@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	uploadDir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = uploadDir

	svc := NewUserService(repository.NewUserRepository(db), NewStorageService(cfg))
	return svc, user, uploadDir
}

func TestUploadAvatar(t *testing.T) {
	svc, user, uploadDir := newUserTestEnv(t)

	url, err := svc.UploadAvatar(context.Background(), user.ID, "me.png",
		bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/avatars/"))

	// MIME 校验读过文件头后指针被重置，落盘内容完整
	written, err := os.ReadFile(filepath.Join(uploadDir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, written)

	// 头像地址写回用户记录
	updated, err := svc.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, url, updated.Avatar)
}

func TestUploadAvatarRejectsNonImageContent(t *testing.T) {
	svc, user, uploadDir := newUserTestEnv(t)

	// 扩展名伪装成图片，内容是文本
	payload := []byte("#!/bin/sh\necho pwned\n")
	_, err := svc.UploadAvatar(context.Background(), user.ID, "evil.png",
		bytes.NewReader(payload), int64(len(payload)), "image/png")
	assert.ErrorIs(t, err, util.ErrInvalidFileType)

	// 拒绝的文件不落盘
	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadAvatarUnknownUser(t *testing.T) {
	svc, _, _ := newUserTestEnv(t)

	_, err := svc.UploadAvatar(context.Background(), 999, "me.png",
		bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png")
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}
