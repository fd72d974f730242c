package repository

import (
	"context"
	"errors"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuizAttemptRepository struct {
	DB *gorm.DB
}

func NewQuizAttemptRepository(db *gorm.DB) *QuizAttemptRepository {
	return &QuizAttemptRepository{DB: db}
}

func (r *QuizAttemptRepository) Create(ctx context.Context, attempt *model.QuizAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *QuizAttemptRepository) FindByID(ctx context.Context, id string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Preload("Answers").
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// FindActive 查找用户在该测验下的 in_progress 作答，没有则返回 nil
func (r *QuizAttemptRepository) FindActive(ctx context.Context, userID, quizID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND status = ?", userID, quizID, model.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// CountCompleted 统计已完结（submitted/expired/graded）的作答次数，
// 与 max_attempts 比较时使用
func (r *QuizAttemptRepository) CountCompleted(ctx context.Context, userID, quizID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ? AND status <> ?", userID, quizID, model.AttemptInProgress).
		Count(&count).Error
	return count, err
}

// GuardActive 事务内对 in_progress 且未过期的作答行做条件更新，
// 作为互斥与状态校验：影响行数为 0 说明作答已不可变更。
// MySQL 下该更新持有行锁直到提交，与并发的提交操作串行化。
func (r *QuizAttemptRepository) GuardActive(tx *gorm.DB, attemptID string, now time.Time) (int64, error) {
	res := tx.Model(&model.QuizAttempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Update("updated_at", now)
	return res.RowsAffected, res.Error
}

// UpsertAnswer 同题重复作答覆盖旧选项（last write wins）
func (r *QuizAttemptRepository) UpsertAnswer(tx *gorm.DB, answer *model.QuizAttemptAnswer) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"choice_index", "updated_at"}),
	}).Create(answer).Error
}

func (r *QuizAttemptRepository) GetAnswers(tx *gorm.DB, attemptID string) ([]model.QuizAttemptAnswer, error) {
	var answers []model.QuizAttemptAnswer
	err := tx.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// ListExpiredIDs 返回已超时但仍处于 in_progress 的作答，供后台清扫
func (r *QuizAttemptRepository) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.AttemptInProgress, now).
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
