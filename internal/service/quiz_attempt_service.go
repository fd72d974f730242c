package service

import (
	"context"
	"errors"
	"math"
	"time"

	"elearning_backend/internal/model"
	"elearning_backend/internal/repository"
	"elearning_backend/internal/util"
	"elearning_backend/pkg/logger"
	"elearning_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuizAttemptService 作答状态机：
// in_progress → submitted → graded，限时到期走 in_progress → expired，
// 过期作答按到期时已有答案结算。评分只发生一次，分数写入后不可变。
type QuizAttemptService struct {
	QuizRepo    *repository.QuizRepository
	AttemptRepo *repository.QuizAttemptRepository
	CourseRepo  *repository.CourseRepository
	EnrollRepo  *repository.EnrollmentRepository
	DB          *gorm.DB
}

func NewQuizAttemptService(quizRepo *repository.QuizRepository, attemptRepo *repository.QuizAttemptRepository,
	courseRepo *repository.CourseRepository, enrollRepo *repository.EnrollmentRepository, db *gorm.DB) *QuizAttemptService {
	return &QuizAttemptService{
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		CourseRepo:  courseRepo,
		EnrollRepo:  enrollRepo,
		DB:          db,
	}
}

// Start 开始一次作答。作答人必须已选测验所属课程，
// 同一 (user, quiz) 已有进行中作答或次数用尽时拒绝。
func (s *QuizAttemptService) Start(ctx context.Context, userID, quizID uint) (*model.QuizAttempt, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsPublished {
		return nil, util.ErrQuizNotPublished
	}

	lesson, err := s.CourseRepo.FindLessonByID(ctx, quiz.LessonID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.EnrollRepo.FindActive(ctx, userID, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, util.ErrNotEnrolled
	}

	now := time.Now()

	// 已超时的进行中作答先行结算，不挡新作答
	if active, err := s.AttemptRepo.FindActive(ctx, userID, quizID); err != nil {
		return nil, err
	} else if active != nil {
		if !active.TimedOut(now) {
			return nil, util.ErrAttemptAlreadyActive
		}
		if err := s.finalizeExpired(ctx, active.ID); err != nil {
			return nil, err
		}
	}

	completed, err := s.AttemptRepo.CountCompleted(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.MaxAttempts != nil && completed >= int64(*quiz.MaxAttempts) {
		return nil, util.ErrAttemptLimitReached
	}

	activeKey := model.ActiveKeyFor(userID, quizID)
	attempt := &model.QuizAttempt{
		UUIDBase:      model.UUIDBase{ID: model.GenerateUUID()},
		QuizID:        quizID,
		UserID:        userID,
		Status:        model.AttemptInProgress,
		StartedAt:     now,
		ActiveKey:     &activeKey,
		AttemptNumber: int(completed) + 1,
	}

	if quiz.TimeLimitSeconds != nil {
		expiresAt := now.Add(time.Duration(*quiz.TimeLimitSeconds) * time.Second)
		attempt.ExpiresAt = &expiresAt
	}

	if err := s.AttemptRepo.Create(ctx, attempt); err != nil {
		// 唯一索引兜底并发竞争：两个并发 Start 只有一个能落库
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrAttemptAlreadyActive
		}
		return nil, err
	}

	return attempt, nil
}

// Answer 记录单题作答，同题重复作答覆盖旧选项。
// 仅 in_progress 且未超时可写，事务内条件更新作答行保证与提交串行。
func (s *QuizAttemptService) Answer(ctx context.Context, userID uint, attemptID string, questionID uint, choiceIndex int) error {
	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.UserID != userID {
		return util.ErrAttemptNotFound
	}

	now := time.Now()
	if attempt.Status == model.AttemptInProgress && attempt.TimedOut(now) {
		if err := s.finalizeExpired(ctx, attempt.ID); err != nil {
			return err
		}
		return util.ErrAttemptExpired
	}
	if attempt.Status != model.AttemptInProgress {
		return util.ErrAttemptNotActive
	}

	quiz, err := s.QuizRepo.FindByID(ctx, attempt.QuizID)
	if err != nil {
		return err
	}

	var question *model.QuizQuestion
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			question = &quiz.Questions[i]
			break
		}
	}
	if question == nil {
		return util.ErrQuestionNotInQuiz
	}
	if choiceIndex < 0 || choiceIndex >= len(question.DecodeChoices()) {
		return util.ErrInvalidChoice
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.AttemptRepo.GuardActive(tx, attempt.ID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// 在读与写之间被提交或过期
			return util.ErrAttemptNotActive
		}

		return s.AttemptRepo.UpsertAnswer(tx, &model.QuizAttemptAnswer{
			AttemptID:   attempt.ID,
			QuestionID:  questionID,
			ChoiceIndex: choiceIndex,
		})
	})
}

// Submit 提交并立即评分。状态流转通过条件更新完成，
// 并发提交只有一个成功，第二次提交拿到 ErrAttemptNotActive。
func (s *QuizAttemptService) Submit(ctx context.Context, userID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}

	now := time.Now()
	if attempt.Status == model.AttemptInProgress && attempt.TimedOut(now) {
		if err := s.finalizeExpired(ctx, attempt.ID); err != nil {
			return nil, err
		}
		return nil, util.ErrAttemptNotActive
	}

	quiz, err := s.QuizRepo.FindByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":       model.AttemptSubmitted,
				"submitted_at": now,
				"active_key":   nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrAttemptNotActive
		}

		answers, err := s.AttemptRepo.GetAnswers(tx, attempt.ID)
		if err != nil {
			return err
		}

		score, passed := scoreAttempt(quiz, answers)
		return tx.Model(&model.QuizAttempt{}).
			Where("id = ?", attempt.ID).
			Updates(map[string]interface{}{
				"status":    model.AttemptGraded,
				"score":     score,
				"passed":    passed,
				"graded_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	graded, err := s.AttemptRepo.FindByID(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	outcome := "failed"
	if graded.Passed {
		outcome = "passed"
	}
	monitoring.AttemptsGraded.WithLabelValues(outcome).Inc()

	return graded, nil
}

// Get 查询作答，超时的进行中作答先懒结算再返回
func (s *QuizAttemptService) Get(ctx context.Context, userID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}

	if attempt.Status == model.AttemptInProgress && attempt.TimedOut(time.Now()) {
		if err := s.finalizeExpired(ctx, attempt.ID); err != nil {
			return nil, err
		}
		return s.AttemptRepo.FindByID(ctx, attempt.ID)
	}

	return attempt, nil
}

// SweepExpired 后台周期清扫：把超时的进行中作答转为 expired 并结算
func (s *QuizAttemptService) SweepExpired(ctx context.Context) error {
	ids, err := s.AttemptRepo.ListExpiredIDs(ctx, time.Now(), 100)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.finalizeExpired(ctx, id); err != nil {
			logger.Log.Error("failed to finalize expired attempt",
				zap.String("attemptId", id), zap.Error(err))
		}
	}
	return nil
}

// finalizeExpired 将超时作答转为 expired 并按已有答案结算。
// 条件更新保证与提交互斥：先到者生效，后到者影响行数为 0 直接返回。
func (s *QuizAttemptService) finalizeExpired(ctx context.Context, attemptID string) error {
	now := time.Now()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
				attemptID, model.AttemptInProgress, now).
			Updates(map[string]interface{}{
				"status":     model.AttemptExpired,
				"active_key": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var attempt model.QuizAttempt
		if err := tx.Where("id = ?", attemptID).First(&attempt).Error; err != nil {
			return err
		}

		quiz, err := s.QuizRepo.FindByID(ctx, attempt.QuizID)
		if err != nil {
			return err
		}

		answers, err := s.AttemptRepo.GetAnswers(tx, attemptID)
		if err != nil {
			return err
		}

		score, passed := scoreAttempt(quiz, answers)
		return tx.Model(&model.QuizAttempt{}).
			Where("id = ?", attemptID).
			Updates(map[string]interface{}{
				"score":     score,
				"passed":    passed,
				"graded_at": now,
			}).Error
	})
}

// scoreAttempt 纯函数评分：答对得该题分值，归一化到 0-100，
// 保留两位小数。相同输入恒产出相同分数。
func scoreAttempt(quiz *model.Quiz, answers []model.QuizAttemptAnswer) (float64, bool) {
	total := quiz.TotalPoints()
	if total == 0 {
		return 0, false
	}

	chosen := make(map[uint]int, len(answers))
	for _, a := range answers {
		chosen[a.QuestionID] = a.ChoiceIndex
	}

	earned := 0
	for _, q := range quiz.Questions {
		if idx, ok := chosen[q.ID]; ok && idx == q.CorrectChoice {
			earned += q.Points
		}
	}

	score := math.Round(float64(earned)/float64(total)*100*100) / 100
	return score, score >= float64(quiz.PassingScore)
}
