package repository

import (
	"context"
	"errors"
	"time"

	"elearning_backend/internal/model"

	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *model.Enrollment) error {
	return r.DB.WithContext(ctx).Create(enrollment).Error
}

// Find 返回 (user, course) 的选课记录，不区分状态。未选课返回 nil, nil。
func (r *EnrollmentRepository) Find(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

// FindActive 仅返回 enrolled 状态的选课记录，退课/不存在均返回 nil, nil
func (r *EnrollmentRepository) FindActive(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.Enrolled).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uint, status model.EnrollmentStatus) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment

	query := r.DB.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Order("created_at DESC").Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND status = ?", courseID, model.Enrolled).
		Count(&count).Error
	return count, err
}

// Reactivate 把退课记录重新置为 enrolled。条件更新，返回影响行数。
func (r *EnrollmentRepository) Reactivate(ctx context.Context, id uint) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND status = ?", id, model.Dropped).
		Updates(map[string]interface{}{
			"status":     model.Enrolled,
			"dropped_at": nil,
		})
	return res.RowsAffected, res.Error
}

// Drop 退课。仅 enrolled 状态可退，返回影响行数，重复退课影响 0 行。
func (r *EnrollmentRepository) Drop(ctx context.Context, userID, courseID uint) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.Enrolled).
		Updates(map[string]interface{}{
			"status":     model.Dropped,
			"dropped_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
