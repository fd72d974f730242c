package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"
)

// UserFilter 定义用户筛选条件
// swagger:model UserFilter
type UserFilter struct {
	Role   string
	Status string
	Search string
}

// UserService 处理用户相关的业务逻辑
type UserService struct {
	UserRepo *repository.UserRepository
	Storage  *StorageService
}

func NewUserService(userRepo *repository.UserRepository, storage *StorageService) *UserService {
	return &UserService{
		UserRepo: userRepo,
		Storage:  storage,
	}
}

// GetUsers 获取用户列表，支持分页和筛选，仅管理员可用
func (s *UserService) GetUsers(ctx context.Context, page, pageSize int, filter UserFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := s.UserRepo.DB.WithContext(ctx).Model(&model.User{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}

	switch filter.Status {
	case "online":
		query = query.Where("last_seen > ?", time.Now().Add(-15*time.Minute))
	case "disabled":
		query = query.Where("is_active = ?", false)
	case "unverified":
		query = query.Where("is_verified = ?", false)
	}

	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", searchTerm, searchTerm)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	return users, total, err
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile 更新用户自己的资料，邮箱与角色不在此处修改
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, name, language string) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	if name != "" {
		user.Name = name
	}
	if language != "" {
		user.Language = language
	}

	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UploadAvatar 上传头像并更新用户记录。
// 扩展名筛查在控制器完成，这里再按文件内容深度校验 MIME 类型。
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.UserRepo.FindByID(ctx, userID); err != nil {
		return "", util.ErrUserNotFound
	}

	mimeType, err := util.ValidateMimeType(reader, []string{"image/"})
	if err != nil {
		return "", util.ErrInvalidFileType
	}
	// 重置读取指针
	if seeker, ok := reader.(io.Seeker); ok {
		seeker.Seek(0, io.SeekStart)
	}
	// 客户端申报的类型不可信，不是图片就用探测结果
	if !util.IsImage(contentType) {
		contentType = mimeType
	}

	objectName := fmt.Sprintf("avatars/%d/%d_%s", userID, time.Now().UnixNano(), filename)
	url, err := s.Storage.Upload(ctx, objectName, reader, size, contentType)
	if err != nil {
		return "", err
	}

	if err := s.UserRepo.UpdateAvatar(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

// SetActive 禁用/启用用户，禁用后该用户的登录与刷新都会被拒绝
func (s *UserService) SetActive(ctx context.Context, userID uint, active bool) error {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return util.ErrUserNotFound
	}

	user.IsActive = active
	return s.UserRepo.Update(ctx, user)
}

// SetRole 管理员调整用户角色
func (s *UserService) SetRole(ctx context.Context, userID uint, role model.UserRole) error {
	if !role.Valid() {
		return util.ErrPermissionDenied
	}

	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return util.ErrUserNotFound
	}

	user.Role = role
	return s.UserRepo.Update(ctx, user)
}
